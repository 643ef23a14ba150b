package live

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Level converts one frame of frequency-domain byte bins (0-255, as an
// analyser node produces them) into a normalized level in [0,1].
func Level(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bins {
		sum += float64(b)
	}
	return sum / float64(len(bins)) / 255.0
}

// LevelMonitor watches the audio level and signals silence while recording
// and interruptions while playback is active.
//
// The first CalibrationSamples frames establish the ambient noise floor;
// the effective speech threshold is the larger of the sensitivity-scaled
// static threshold and 1.5x ambient. During playback a separate adaptive
// threshold tracks the loudest level seen so far, so the monitor keeps
// working when speaker bleed raises the floor.
type LevelMonitor struct {
	config MonitorConfig

	mu         sync.Mutex
	calSamples int
	calSum     float64
	ambient    float64
	recording  bool
	playing    bool
	quietSince time.Time
	peak       float64
	counter    float64

	onSilence   func()
	onInterrupt func()
	onDebug     func(category, message string)
}

// NewLevelMonitor creates a monitor in its calibration phase.
func NewLevelMonitor(config MonitorConfig) *LevelMonitor {
	return &LevelMonitor{config: config}
}

// SetCallbacks sets the event callbacks for the monitor.
func (m *LevelMonitor) SetCallbacks(
	onSilence func(),
	onInterrupt func(),
	onDebug func(category, message string),
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSilence = onSilence
	m.onInterrupt = onInterrupt
	m.onDebug = onDebug
}

// SetRecording tells the monitor whether a capture is in progress.
func (m *LevelMonitor) SetRecording(recording bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recording = recording
	m.quietSince = time.Time{}
}

// SetPlaying tells the monitor whether playback is active. Entering
// playback resets the interrupt counter and peak tracker.
func (m *LevelMonitor) SetPlaying(playing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = playing
	m.counter = 0
	m.peak = 0
}

// Recalibrate re-runs the ambient calibration window.
func (m *LevelMonitor) Recalibrate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calSamples = 0
	m.calSum = 0
	m.ambient = 0
}

// Threshold returns the current effective speech threshold.
func (m *LevelMonitor) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold()
}

// threshold must be called with the mutex held.
func (m *LevelMonitor) threshold() float64 {
	static := m.config.StaticThreshold * float64(11-m.config.Sensitivity) / 5.0
	if adaptive := m.ambient * 1.5; adaptive > static {
		return adaptive
	}
	return static
}

// PCMLevel computes the RMS level of 16-bit signed little-endian PCM,
// normalized to [0,1]. Used by sources that deliver raw PCM instead of
// analyser bins.
func PCMLevel(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(pcm[i])|int16(pcm[i+1])<<8) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(samples))
}

// Sample feeds one analysis frame to the monitor.
func (m *LevelMonitor) Sample(bins []byte) {
	m.sampleAt(Level(bins), time.Now())
}

// SampleLevel feeds an already-computed level.
func (m *LevelMonitor) SampleLevel(level float64) {
	m.sampleAt(level, time.Now())
}

func (m *LevelMonitor) sampleAt(level float64, now time.Time) {
	m.mu.Lock()

	// Calibration phase: accumulate the ambient floor, signal nothing.
	if m.calSamples < m.config.CalibrationSamples {
		m.calSum += level
		m.calSamples++
		if m.calSamples == m.config.CalibrationSamples {
			m.ambient = 0.7 * (m.calSum / float64(m.calSamples))
			threshold := m.threshold()
			m.mu.Unlock()
			m.debug("CALIBRATE", fmt.Sprintf("ambient floor set, threshold=%.4f", threshold))
			return
		}
		m.mu.Unlock()
		return
	}

	if m.playing {
		m.samplePlaying(level)
		m.mu.Unlock()
		return
	}

	if !m.recording {
		m.mu.Unlock()
		return
	}

	if level >= m.threshold() {
		m.quietSince = time.Time{}
		m.mu.Unlock()
		return
	}

	if m.quietSince.IsZero() {
		m.quietSince = now
		m.mu.Unlock()
		return
	}

	if now.Sub(m.quietSince) < m.config.QuietPeriod {
		m.mu.Unlock()
		return
	}

	m.quietSince = time.Time{}
	cb := m.onSilence
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// samplePlaying runs interrupt detection. Must be called with the mutex
// held; the interrupt callback is dispatched on its own goroutine so the
// sampling path never blocks on it.
func (m *LevelMonitor) samplePlaying(level float64) {
	if level > m.peak {
		m.peak = level
	}

	scaled := m.threshold() * 2 * float64(11-m.config.Sensitivity) / 5.0
	adaptive := scaled
	if p := 0.7 * m.peak; p > adaptive {
		adaptive = p
	}

	if level > adaptive {
		m.counter++
		if level > 1.5*adaptive {
			m.counter++
		}
	} else if m.counter > 0 {
		// Decay instead of a hard reset so bursty noise between loud
		// samples does not erase real progress toward the trigger.
		m.counter -= 0.5
		if m.counter < 0 {
			m.counter = 0
		}
	}

	required := 4.0 - float64(m.config.Sensitivity)/3.0
	if required < 1 {
		required = 1
	}
	if m.counter <= required {
		return
	}

	m.counter = 0
	m.peak = 0
	if cb := m.onInterrupt; cb != nil {
		go cb()
	}
}

func (m *LevelMonitor) debug(category, message string) {
	m.mu.Lock()
	cb := m.onDebug
	m.mu.Unlock()
	if cb != nil {
		cb(category, message)
	}
}

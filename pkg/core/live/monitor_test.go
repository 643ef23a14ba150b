package live

import (
	"testing"
	"time"
)

func calibrated(t *testing.T, cfg MonitorConfig, ambientLevel float64) *LevelMonitor {
	t.Helper()
	m := NewLevelMonitor(cfg)
	now := time.Now()
	for i := 0; i < cfg.CalibrationSamples; i++ {
		m.sampleAt(ambientLevel, now)
	}
	return m
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Fatalf("Level(nil) = %v", got)
	}
	if got := Level([]byte{255, 255}); got != 1 {
		t.Fatalf("Level(full) = %v", got)
	}
	if got := Level([]byte{0, 255}); got != 0.5 {
		t.Fatalf("Level(half) = %v", got)
	}
}

func TestMonitor_ThresholdUsesAmbientFloor(t *testing.T) {
	cfg := DefaultMonitorConfig()

	// Quiet room: the static threshold wins.
	quiet := calibrated(t, cfg, 0.001)
	if got := quiet.Threshold(); got != cfg.StaticThreshold*6/5 {
		t.Fatalf("quiet threshold = %v", got)
	}

	// Noisy room: ambient*1.5 wins. Ambient = 0.7 * 0.1 = 0.07.
	noisy := calibrated(t, cfg, 0.1)
	want := 0.07 * 1.5
	if got := noisy.Threshold(); got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("noisy threshold = %v, want %v", got, want)
	}
}

func TestMonitor_Recalibrate(t *testing.T) {
	cfg := DefaultMonitorConfig()
	m := calibrated(t, cfg, 0.1)

	m.Recalibrate()
	now := time.Now()
	for i := 0; i < cfg.CalibrationSamples; i++ {
		m.sampleAt(0.001, now)
	}
	if got := m.Threshold(); got != cfg.StaticThreshold*6/5 {
		t.Fatalf("threshold after recalibration = %v", got)
	}
}

func TestMonitor_SilenceAfterQuietPeriod(t *testing.T) {
	cfg := DefaultMonitorConfig()
	m := calibrated(t, cfg, 0.001)

	var fired int
	m.SetCallbacks(func() { fired++ }, nil, nil)
	m.SetRecording(true)

	start := time.Now()
	m.sampleAt(0.5, start)                                // speech
	m.sampleAt(0.001, start.Add(100*time.Millisecond))    // quiet begins
	m.sampleAt(0.001, start.Add(400*time.Millisecond))    // still below the period
	if fired != 0 {
		t.Fatalf("silence fired early, count=%d", fired)
	}

	m.sampleAt(0.001, start.Add(900*time.Millisecond))
	if fired != 1 {
		t.Fatalf("silence fired %d times, want 1", fired)
	}
}

func TestMonitor_SpeechResetsQuietTimer(t *testing.T) {
	cfg := DefaultMonitorConfig()
	m := calibrated(t, cfg, 0.001)

	var fired int
	m.SetCallbacks(func() { fired++ }, nil, nil)
	m.SetRecording(true)

	start := time.Now()
	m.sampleAt(0.001, start)
	m.sampleAt(0.5, start.Add(500*time.Millisecond)) // speech resets
	m.sampleAt(0.001, start.Add(600*time.Millisecond))
	m.sampleAt(0.001, start.Add(1100*time.Millisecond)) // only 500ms quiet
	if fired != 0 {
		t.Fatalf("silence fired despite speech reset, count=%d", fired)
	}
}

func TestMonitor_NoSilenceWhenNotRecording(t *testing.T) {
	cfg := DefaultMonitorConfig()
	m := calibrated(t, cfg, 0.001)

	var fired int
	m.SetCallbacks(func() { fired++ }, nil, nil)

	start := time.Now()
	m.sampleAt(0.001, start)
	m.sampleAt(0.001, start.Add(2*time.Second))
	if fired != 0 {
		t.Fatalf("silence fired while idle, count=%d", fired)
	}
}

func TestMonitor_SingleLoudSampleDoesNotInterrupt(t *testing.T) {
	cfg := DefaultMonitorConfig()
	m := calibrated(t, cfg, 0.001)

	interrupted := make(chan struct{}, 1)
	m.SetCallbacks(nil, func() { interrupted <- struct{}{} }, nil)
	m.SetPlaying(true)

	now := time.Now()
	m.sampleAt(0.9, now)
	for i := 0; i < 10; i++ {
		m.sampleAt(0.001, now)
	}

	select {
	case <-interrupted:
		t.Fatal("single loud sample fired the interrupt")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitor_MaxSensitivityStillNeedsTwoSamples(t *testing.T) {
	cfg := DefaultMonitorConfig()
	cfg.Sensitivity = 10
	m := calibrated(t, cfg, 0.001)

	interrupted := make(chan struct{}, 1)
	m.SetCallbacks(nil, func() { interrupted <- struct{}{} }, nil)
	m.SetPlaying(true)

	// The peak tracker is updated before the adaptive threshold is
	// computed, so 1.5x adaptive is always above the sample itself and no
	// single sample can score the bonus increment.
	now := time.Now()
	m.sampleAt(1.0, now)
	select {
	case <-interrupted:
		t.Fatal("one loud sample fired the interrupt at max sensitivity")
	case <-time.After(50 * time.Millisecond):
	}

	m.sampleAt(1.0, now)
	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Fatal("second loud sample did not fire at max sensitivity")
	}
}

func TestMonitor_SustainedSpeechInterrupts(t *testing.T) {
	cfg := DefaultMonitorConfig()
	m := calibrated(t, cfg, 0.001)

	interrupted := make(chan struct{}, 1)
	m.SetCallbacks(nil, func() { interrupted <- struct{}{} }, nil)
	m.SetPlaying(true)

	now := time.Now()
	for i := 0; i < 8; i++ {
		m.sampleAt(0.9, now)
	}

	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Fatal("sustained speech never fired the interrupt")
	}
}

func TestMonitor_DecayRidesOutBurstyNoise(t *testing.T) {
	cfg := DefaultMonitorConfig()
	m := calibrated(t, cfg, 0.001)

	interrupted := make(chan struct{}, 1)
	m.SetCallbacks(nil, func() { interrupted <- struct{}{} }, nil)
	m.SetPlaying(true)

	// Alternating loud and quiet: each loud sample adds at least 1, each
	// quiet one only removes 0.5, so the counter still climbs.
	now := time.Now()
	for i := 0; i < 20; i++ {
		m.sampleAt(0.9, now)
		m.sampleAt(0.001, now)
	}

	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Fatal("bursty speech never fired the interrupt")
	}
}

func TestMonitor_NoInterruptWhenNotPlaying(t *testing.T) {
	cfg := DefaultMonitorConfig()
	m := calibrated(t, cfg, 0.001)

	interrupted := make(chan struct{}, 1)
	m.SetCallbacks(nil, func() { interrupted <- struct{}{} }, nil)

	now := time.Now()
	for i := 0; i < 20; i++ {
		m.sampleAt(0.9, now)
	}

	select {
	case <-interrupted:
		t.Fatal("interrupt fired outside playback")
	case <-time.After(50 * time.Millisecond):
	}
}

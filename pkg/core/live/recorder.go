package live

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CaptureDevice abstracts the platform audio input. Start begins a
// capture; Stop ends it and returns the encoded blob.
type CaptureDevice interface {
	Start() error
	Stop() ([]byte, error)
}

// ErrBusy is returned when a capture cannot start because another part of
// the turn is still in flight.
var ErrBusy = errors.New("live: capture refused while busy")

// Recorder owns a CaptureDevice and enforces the capture rules: no new
// capture while the gate reports busy, a hard duration cap, and a minimum
// blob size below which a capture is dropped as noise.
type Recorder struct {
	config RecorderConfig
	device CaptureDevice

	mu        sync.Mutex
	recording bool
	capTimer  *time.Timer

	// Gate reports whether a capture may start. Left nil, captures are
	// always allowed.
	Gate func() bool

	onBlob    func(audio []byte)
	onDropped func(size int)
	onDebug   func(category, message string)
}

// NewRecorder creates a recorder around the given device.
func NewRecorder(config RecorderConfig, device CaptureDevice) *Recorder {
	return &Recorder{config: config, device: device}
}

// SetCallbacks sets the event callbacks for the recorder.
func (r *Recorder) SetCallbacks(
	onBlob func(audio []byte),
	onDropped func(size int),
	onDebug func(category, message string),
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onBlob = onBlob
	r.onDropped = onDropped
	r.onDebug = onDebug
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Start begins a capture. It refuses with ErrBusy while the gate reports
// busy or a capture is already running. The hard cap timer force-stops a
// capture that outlives MaxDuration.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrBusy
	}
	if r.Gate != nil && !r.Gate() {
		r.mu.Unlock()
		return ErrBusy
	}

	if err := r.device.Start(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("start capture: %w", err)
	}

	r.recording = true
	r.capTimer = time.AfterFunc(r.config.MaxDuration, func() {
		r.debug("RECORDER", "hard cap reached, forcing stop")
		r.Stop()
	})
	r.mu.Unlock()

	r.debug("RECORDER", "capture started")
	return nil
}

// Stop ends the capture. Blobs below MinBytes are dropped without
// reaching the blob callback. Stopping an idle recorder is a no-op.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	if r.capTimer != nil {
		r.capTimer.Stop()
		r.capTimer = nil
	}
	onBlob := r.onBlob
	onDropped := r.onDropped
	r.mu.Unlock()

	audio, err := r.device.Stop()
	if err != nil {
		r.debug("RECORDER", fmt.Sprintf("stop capture: %v", err))
		return
	}

	if len(audio) < r.config.MinBytes {
		r.debug("RECORDER", fmt.Sprintf("dropping %d byte capture as noise", len(audio)))
		if onDropped != nil {
			onDropped(len(audio))
		}
		return
	}

	if onBlob != nil {
		onBlob(audio)
	}
}

func (r *Recorder) debug(category, message string) {
	r.mu.Lock()
	cb := r.onDebug
	r.mu.Unlock()
	if cb != nil {
		cb(category, message)
	}
}

package live

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeDevice struct {
	mu       sync.Mutex
	started  int
	stopped  int
	blob     []byte
	startErr error
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started++
	return nil
}

func (d *fakeDevice) Stop() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	return d.blob, nil
}

func TestRecorder_DeliversBlob(t *testing.T) {
	dev := &fakeDevice{blob: make([]byte, 2000)}
	r := NewRecorder(DefaultRecorderConfig(), dev)

	var got []byte
	r.SetCallbacks(func(audio []byte) { got = audio }, nil, nil)

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.Recording() {
		t.Fatal("not recording after start")
	}
	r.Stop()

	if len(got) != 2000 {
		t.Fatalf("blob = %d bytes, want 2000", len(got))
	}
	if r.Recording() {
		t.Fatal("still recording after stop")
	}
}

func TestRecorder_DropsSmallCaptures(t *testing.T) {
	dev := &fakeDevice{blob: make([]byte, 500)}
	r := NewRecorder(DefaultRecorderConfig(), dev)

	var blobs, dropped int
	r.SetCallbacks(
		func(audio []byte) { blobs++ },
		func(size int) { dropped = size },
		nil,
	)

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.Stop()

	if blobs != 0 {
		t.Fatalf("blob delivered for %d byte capture", dropped)
	}
	if dropped != 500 {
		t.Fatalf("dropped size = %d, want 500", dropped)
	}
}

func TestRecorder_RefusesWhileRecording(t *testing.T) {
	dev := &fakeDevice{blob: make([]byte, 2000)}
	r := NewRecorder(DefaultRecorderConfig(), dev)

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrBusy) {
		t.Fatalf("second start err = %v, want ErrBusy", err)
	}
	r.Stop()
}

func TestRecorder_GateRefusal(t *testing.T) {
	dev := &fakeDevice{}
	r := NewRecorder(DefaultRecorderConfig(), dev)
	r.Gate = func() bool { return false }

	if err := r.Start(); !errors.Is(err, ErrBusy) {
		t.Fatalf("start err = %v, want ErrBusy", err)
	}
	if dev.started != 0 {
		t.Fatal("device started despite closed gate")
	}
}

func TestRecorder_HardCapForcesStop(t *testing.T) {
	dev := &fakeDevice{blob: make([]byte, 2000)}
	cfg := DefaultRecorderConfig()
	cfg.MaxDuration = 20 * time.Millisecond
	r := NewRecorder(cfg, dev)

	done := make(chan []byte, 1)
	r.SetCallbacks(func(audio []byte) { done <- audio }, nil, nil)

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hard cap never stopped the capture")
	}
	if r.Recording() {
		t.Fatal("still recording after hard cap")
	}
}

func TestRecorder_StopWhenIdleIsNoop(t *testing.T) {
	dev := &fakeDevice{}
	r := NewRecorder(DefaultRecorderConfig(), dev)
	r.Stop()
	if dev.stopped != 0 {
		t.Fatal("device stopped without a capture")
	}
}

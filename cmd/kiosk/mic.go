package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"github.com/camarero-ai/camarero/pkg/core/live"
)

const micSampleRateHz = 16000

// ffmpegMic reads mono 16kHz PCM from the default input device via a
// single long-running ffmpeg process. Every chunk feeds the level monitor
// regardless of capture state, so silence detection works while listening
// and interrupt detection works while a reply is on the speaker. Start and
// Stop (the live.CaptureDevice surface) only open and close a window onto
// the stream.
type ffmpegMic struct {
	monitor *live.LevelMonitor

	mu        sync.Mutex
	capturing bool
	buf       []byte
	cmd       *exec.Cmd
	done      chan struct{}
}

func newFFmpegMic(monitor *live.LevelMonitor) (*ffmpegMic, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	return &ffmpegMic{monitor: monitor}, nil
}

func micFFmpegArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

// Run launches the continuous ffmpeg process and the monitoring loop.
func (m *ffmpegMic) Run() error {
	args, err := micFFmpegArgs(runtime.GOOS)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		return errors.New("mic stream already running")
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg mic capture: %w", err)
	}

	m.cmd = cmd
	m.done = make(chan struct{})

	go m.readLoop(stdout, m.done)
	return nil
}

// Close kills the ffmpeg process and waits for the monitoring loop to
// drain.
func (m *ffmpegMic) Close() {
	m.mu.Lock()
	cmd := m.cmd
	done := m.done
	m.cmd = nil
	m.mu.Unlock()

	if cmd == nil {
		return
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
	if done != nil {
		<-done
	}
}

// readLoop drains PCM off the pipe in ~100ms chunks. Every chunk feeds the
// level monitor; only chunks inside an open capture window reach the
// buffer.
func (m *ffmpegMic) readLoop(stdout io.Reader, done chan struct{}) {
	defer close(done)
	chunk := make([]byte, micSampleRateHz*2/10)
	for {
		n, err := io.ReadFull(stdout, chunk)
		if n > 0 {
			m.monitor.SampleLevel(live.PCMLevel(chunk[:n]))
			m.mu.Lock()
			if m.capturing {
				m.buf = append(m.buf, chunk[:n]...)
			}
			m.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Start opens a capture window on the running stream.
func (m *ffmpegMic) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil {
		return errors.New("mic stream is not running")
	}
	if m.capturing {
		return errors.New("mic already capturing")
	}
	m.capturing = true
	m.buf = m.buf[:0]
	return nil
}

// Stop closes the capture window and returns the buffered audio as WAV.
func (m *ffmpegMic) Stop() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.capturing {
		return nil, nil
	}
	m.capturing = false
	pcm := m.buf
	m.buf = nil
	if len(pcm) == 0 {
		return nil, nil
	}
	return wavFromPCM(pcm, micSampleRateHz), nil
}

// wavFromPCM wraps raw mono 16-bit PCM in a minimal WAV container so the
// transcription endpoint can detect the format.
func wavFromPCM(pcm []byte, sampleRate int) []byte {
	out := make([]byte, 0, 44+len(pcm))
	u32 := func(v uint32) []byte {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		return b[:]
	}
	u16 := func(v uint16) []byte {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		return b[:]
	}

	byteRate := uint32(sampleRate * 2)
	out = append(out, []byte("RIFF")...)
	out = append(out, u32(uint32(36+len(pcm)))...)
	out = append(out, []byte("WAVE")...)
	out = append(out, []byte("fmt ")...)
	out = append(out, u32(16)...)
	out = append(out, u16(1)...) // PCM
	out = append(out, u16(1)...) // mono
	out = append(out, u32(uint32(sampleRate))...)
	out = append(out, u32(byteRate)...)
	out = append(out, u16(2)...)  // block align
	out = append(out, u16(16)...) // bits per sample
	out = append(out, []byte("data")...)
	out = append(out, u32(uint32(len(pcm)))...)
	out = append(out, pcm...)
	return out
}

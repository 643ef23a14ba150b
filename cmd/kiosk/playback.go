package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ffplayPlayer plays mp3 reply audio through ffplay. It implements
// live.Player: Play blocks until the clip finishes or the context is
// cancelled, Stop kills the current process.
type ffplayPlayer struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

func newFFplayPlayer() (*ffplayPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	return &ffplayPlayer{}, nil
}

func (p *ffplayPlayer) Play(ctx context.Context, audio []byte) error {
	cmd := exec.Command("ffplay",
		"-hide_banner", "-loglevel", "error",
		"-autoexit", "-nodisp",
		"-i", "-",
	)
	cmd.Stdin = bytes.NewReader(audio)
	cmd.Stderr = io.Discard

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		p.Stop()
		<-done
		return ctx.Err()
	case err := <-done:
		p.mu.Lock()
		p.cmd = nil
		p.mu.Unlock()
		return err
	}
}

func (p *ffplayPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
}

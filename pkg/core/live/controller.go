package live

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/camarero-ai/camarero/pkg/session"
)

// State is the controller's position in the conversation cycle.
type State int

const (
	// StateIdle means nothing is in flight.
	StateIdle State = iota
	// StateListening means a capture window is open.
	StateListening
	// StateTranscribing means a blob has been uploaded and the synchronous
	// half of the turn is running.
	StateTranscribing
	// StateAwaitingReply means the turn was accepted and the reply is
	// being generated server-side.
	StateAwaitingReply
	// StateSpeaking means reply audio is playing.
	StateSpeaking
	// StateInterrupted is the side exit taken when the user cuts in; the
	// next restart returns to listening.
	StateInterrupted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateAwaitingReply:
		return "AWAITING_REPLY"
	case StateSpeaking:
		return "SPEAKING"
	case StateInterrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// TranscribeReply is the synchronous answer to an audio upload.
type TranscribeReply struct {
	Text       string
	ResponseID string
	Ignored    bool
	Reason     string
}

// API is the server surface the controller drives.
type API interface {
	Ping(ctx context.Context) error
	Transcribe(ctx context.Context, audio []byte, language, lastText string) (TranscribeReply, error)
	Interrupt(ctx context.Context) error
	ResetState(ctx context.Context) error
	Poll(ctx context.Context) ([]session.Message, error)
}

// Player plays reply audio. Play blocks until the audio finishes or the
// context is cancelled; Stop aborts the current playback.
type Player interface {
	Play(ctx context.Context, audio []byte) error
	Stop()
}

// Controller runs the conversation cycle: it opens capture windows,
// uploads blobs, polls for reply messages, plays audio, and restarts
// listening after every terminal event. Interrupts, whether detected by
// the level monitor or initiated from the UI, take the same path.
type Controller struct {
	config   ControllerConfig
	api      API
	recorder *Recorder
	monitor  *LevelMonitor
	player   Player
	logger   *slog.Logger

	mu             sync.Mutex
	state          State
	lastText       string
	lastActivity   time.Time
	restartPending bool
	playCancel     context.CancelFunc
	playQueue      [][]byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OnEvent, when set, receives every message the poll loop sees.
	// Intended for UI surfaces (captions, transcripts).
	OnEvent func(msg session.Message)
}

// NewController wires the monitor and recorder callbacks into the state
// machine. Start must be called before the controller does anything.
func NewController(config ControllerConfig, api API, recorder *Recorder, monitor *LevelMonitor, player Player, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		config:   config,
		api:      api,
		recorder: recorder,
		monitor:  monitor,
		player:   player,
		logger:   logger,
	}

	recorder.Gate = c.captureAllowed
	recorder.SetCallbacks(c.handleBlob, c.handleDropped, c.debugLog)
	monitor.SetCallbacks(c.handleSilence, c.handleInterrupt, c.debugLog)
	return c
}

// Start begins the poll and watchdog loops and opens the first capture
// window.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.mu.Lock()
	c.state = StateIdle
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.wg.Add(2)
	go c.pollLoop()
	go c.watchdogLoop()

	c.startListening()
}

// Stop halts the loops and any in-flight playback.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.player.Stop()
	c.recorder.Stop()
	c.wg.Wait()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// captureAllowed is the recorder gate: captures may only start while the
// controller is idle, listening, or coming back from an interrupt.
func (c *Controller) captureAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateIdle || c.state == StateListening || c.state == StateInterrupted
}

func (c *Controller) startListening() {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateInterrupted {
		c.mu.Unlock()
		return
	}
	c.state = StateListening
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.monitor.SetRecording(true)
	if err := c.recorder.Start(); err != nil {
		c.monitor.SetRecording(false)
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		if !errors.Is(err, ErrBusy) {
			c.logger.Warn("capture start failed", "error", err)
		}
		c.scheduleRestart()
	}
}

// handleSilence is the monitor's stop-recording signal.
func (c *Controller) handleSilence() {
	c.mu.Lock()
	listening := c.state == StateListening
	c.mu.Unlock()
	if listening {
		c.recorder.Stop()
	}
}

// handleInterrupt is the monitor's playback interruption signal.
func (c *Controller) handleInterrupt() {
	c.Interrupt()
}

// handleDropped fires when a capture was too small to upload.
func (c *Controller) handleDropped(size int) {
	c.logger.Debug("capture dropped as noise", "bytes", size)
	c.monitor.SetRecording(false)
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.scheduleRestart()
}

// handleBlob uploads a finished capture and runs the synchronous half of
// the turn.
func (c *Controller) handleBlob(audio []byte) {
	c.monitor.SetRecording(false)

	c.mu.Lock()
	c.state = StateTranscribing
	c.lastActivity = time.Now()
	lastText := c.lastText
	c.mu.Unlock()

	reply, err := c.api.Transcribe(c.ctx, audio, c.config.Language, lastText)
	if err != nil {
		c.logger.Warn("transcription failed", "error", err)
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.scheduleRestart()
		return
	}

	if reply.Ignored {
		c.logger.Debug("turn ignored", "reason", reply.Reason)
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.scheduleRestart()
		return
	}

	c.mu.Lock()
	c.lastText = reply.Text
	c.state = StateAwaitingReply
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Interrupt stops playback, tells the server to abandon the current turn,
// and takes the side exit back toward listening.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	if c.playCancel != nil {
		c.playCancel()
		c.playCancel = nil
	}
	c.playQueue = nil
	c.state = StateInterrupted
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.player.Stop()
	c.monitor.SetPlaying(false)

	if err := c.api.Interrupt(c.ctx); err != nil {
		c.logger.Warn("interrupt request failed", "error", err)
	}
	c.scheduleRestart()
}

// Reset clears server-side processing state and restarts listening.
func (c *Controller) Reset() {
	if err := c.api.ResetState(c.ctx); err != nil {
		c.logger.Warn("reset request failed", "error", err)
	}
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.scheduleRestart()
}

// scheduleRestart opens the next capture window after the restart delay.
// Guarded so overlapping terminal events produce a single restart.
func (c *Controller) scheduleRestart() {
	c.mu.Lock()
	if c.restartPending {
		c.mu.Unlock()
		return
	}
	c.restartPending = true
	c.mu.Unlock()

	time.AfterFunc(c.config.RestartDelay, func() {
		c.mu.Lock()
		c.restartPending = false
		if c.state != StateIdle && c.state != StateInterrupted {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if c.ctx.Err() != nil {
			return
		}
		c.startListening()
	})
}

func (c *Controller) pollLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			msgs, err := c.api.Poll(c.ctx)
			if err != nil {
				c.logger.Debug("poll failed", "error", err)
				// Ping probes the connection so a transient outage
				// clears the client's disconnected flag.
				if perr := c.api.Ping(c.ctx); perr != nil {
					c.logger.Debug("ping failed", "error", perr)
				}
				continue
			}
			for _, msg := range msgs {
				c.handleMessage(msg)
			}
		}
	}
}

func (c *Controller) handleMessage(msg session.Message) {
	if c.OnEvent != nil {
		c.OnEvent(msg)
	}

	switch msg.Event {
	case session.EventAudioResponse:
		encoded, _ := msg.Data["audio"].(string)
		audio, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(audio) == 0 {
			c.logger.Warn("unplayable audio message", "error", err)
			return
		}
		c.enqueueAudio(audio)

	case session.EventInterrupted, session.EventStateReset, session.EventError:
		c.mu.Lock()
		if c.state == StateAwaitingReply || c.state == StateSpeaking {
			c.state = StateIdle
		}
		c.mu.Unlock()
		c.scheduleRestart()

	case session.EventConnected:
		c.scheduleRestart()
	}
}

// enqueueAudio plays a reply chunk, or queues it when another chunk is
// already on the speaker so multi-chunk replies play in order. Only an
// interrupt preempts playback.
func (c *Controller) enqueueAudio(audio []byte) {
	c.mu.Lock()
	if c.state == StateSpeaking {
		c.playQueue = append(c.playQueue, audio)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.play(audio)
}

// play runs playback on its own goroutine so the poll loop keeps
// draining messages while audio is on the speaker. When the chunk ends it
// chains straight into the next queued chunk, if any.
func (c *Controller) play(audio []byte) {
	playCtx, cancel := context.WithCancel(c.ctx)

	c.mu.Lock()
	if c.state == StateInterrupted {
		// An interrupt won the race against this chunk; drop it.
		c.mu.Unlock()
		cancel()
		return
	}
	c.playCancel = cancel
	c.state = StateSpeaking
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.monitor.SetPlaying(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.player.Play(playCtx, audio); err != nil && playCtx.Err() == nil {
			c.logger.Warn("playback failed", "error", err)
		}
		cancel()

		c.mu.Lock()
		c.playCancel = nil
		var next []byte
		if c.state == StateSpeaking && len(c.playQueue) > 0 {
			next = c.playQueue[0]
			c.playQueue = c.playQueue[1:]
		} else if c.state == StateSpeaking {
			c.state = StateIdle
		}
		c.mu.Unlock()

		if next != nil {
			c.play(next)
			return
		}
		c.monitor.SetPlaying(false)
		c.scheduleRestart()
	}()
}

func (c *Controller) watchdogLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			stalled := c.state == StateIdle &&
				time.Since(c.lastActivity) > c.config.StallWindow
			c.mu.Unlock()

			if stalled {
				c.logger.Debug("watchdog restarting listening")
				c.startListening()
			}
		}
	}
}

func (c *Controller) debugLog(category, message string) {
	c.logger.Debug(message, "category", category)
}

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names the kinds of messages a session can push to its client.
type Event string

const (
	EventConnected     Event = "connected"
	EventTranscription Event = "transcription"
	EventWakeWord      Event = "wake_word_detected"
	EventResponseChunk Event = "response_chunk"
	EventAudioResponse Event = "audio_response"
	EventInterrupted   Event = "interrupted"
	EventStateReset    Event = "state_reset"
	EventError         Event = "error"
)

// Message is one entry in a session's outbox.
type Message struct {
	ID        string         `json:"id"`
	Event     Event          `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Outbox is the per-session append-only message log the client drains by
// polling with a timestamp cursor. Timestamps are unix milliseconds, forced
// strictly increasing so the cursor contract (return everything strictly
// newer) never skips or double-counts within one append.
type Outbox struct {
	mu     sync.Mutex
	msgs   []Message
	lastTS int64
	subs   map[chan struct{}]struct{}
}

func NewOutbox() *Outbox {
	return &Outbox{subs: make(map[chan struct{}]struct{})}
}

// Append adds a message stamped with the current time, bumped by one
// millisecond if the clock has not advanced since the previous append.
func (o *Outbox) Append(event Event, data map[string]any) Message {
	o.mu.Lock()
	ts := time.Now().UnixMilli()
	if ts <= o.lastTS {
		ts = o.lastTS + 1
	}
	o.lastTS = ts
	msg := Message{
		ID:        uuid.NewString(),
		Event:     event,
		Data:      data,
		Timestamp: ts,
	}
	o.msgs = append(o.msgs, msg)
	for ch := range o.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	o.mu.Unlock()
	return msg
}

// ReadSince returns all messages with Timestamp strictly greater than
// cursor, in append order. Re-reading with an unchanged cursor returns the
// same slice: delivery is at-least-once and the client dedupes by cursor.
func (o *Outbox) ReadSince(cursor int64) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := 0
	for i < len(o.msgs) && o.msgs[i].Timestamp <= cursor {
		i++
	}
	if i == len(o.msgs) {
		return nil
	}
	out := make([]Message, len(o.msgs)-i)
	copy(out, o.msgs[i:])
	return out
}

// Subscribe registers for append notifications. The returned channel gets a
// best-effort tick per append; the caller re-reads with its own cursor.
func (o *Outbox) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	o.mu.Unlock()
	cancel := func() {
		o.mu.Lock()
		delete(o.subs, ch)
		o.mu.Unlock()
	}
	return ch, cancel
}

// Sweep drops messages older than ttl. Delivered-but-unswept messages are
// harmless: the cursor already filters them.
func (o *Outbox) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	o.mu.Lock()
	defer o.mu.Unlock()

	i := 0
	for i < len(o.msgs) && o.msgs[i].Timestamp < cutoff {
		i++
	}
	if i == 0 {
		return 0
	}
	o.msgs = append([]Message(nil), o.msgs[i:]...)
	return i
}

// Len reports how many messages are retained.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

// Package session holds the server-side state for each connected client:
// the outbox message log, the conversation history, and the fencing tokens
// that keep exactly one response in flight per session.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryWindow is how many recent turns are included in completion
// prompts. Older turns are retained but never sent.
const HistoryWindow = 10

// Turn is one exchange in the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the per-client server state. All fields are guarded by mu;
// the outbox has its own lock and is safe to use without holding mu.
type Session struct {
	ClientID string
	Outbox   *Outbox

	mu                sync.Mutex
	language          string
	createdAt         time.Time
	lastAudioAt       time.Time
	currentResponseID string
	processing        bool
	lastTranscript    string
	history           []Turn
}

// New creates a session and pushes the initial connected message.
func New(clientID string) *Session {
	s := &Session{
		ClientID:  clientID,
		Outbox:    NewOutbox(),
		language:  "es",
		createdAt: time.Now(),
	}
	s.lastAudioAt = s.createdAt
	s.Outbox.Append(EventConnected, map[string]any{"clientId": clientID})
	return s
}

// BeginTurn mints a fresh response id, makes it the session's only current
// one, and marks the session processing. Any response still in flight for a
// previous id becomes stale the moment this returns.
func (s *Session) BeginTurn() string {
	id := newResponseID()
	s.mu.Lock()
	s.currentResponseID = id
	s.processing = true
	s.mu.Unlock()
	return id
}

func newResponseID() string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("resp_%d_%s", time.Now().UnixMilli(), short)
}

// StillCurrent reports whether token names the in-flight response. It is a
// read-only probe for early exits; externally visible effects go through
// PushIfCurrent or CommitExchangeIfCurrent, which hold the lock across the
// check and the effect.
func (s *Session) StillCurrent(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token != "" && token == s.currentResponseID
}

// PushIfCurrent appends an outbox message only if token still names the
// current response. Check and append share the session lock, so an
// interrupt cannot land between them and let a superseded turn deliver
// output after its interrupted message.
func (s *Session) PushIfCurrent(token string, event Event, data map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || token != s.currentResponseID {
		return false
	}
	s.Outbox.Append(event, data)
	return true
}

// CommitExchangeIfCurrent records a completed user/assistant exchange only
// if token still names the current response, under the same lock as the
// check. A stale token leaves the history untouched.
func (s *Session) CommitExchangeIfCurrent(token, user, assistant string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || token != s.currentResponseID {
		return false
	}
	s.history = append(s.history,
		Turn{Role: "user", Content: user},
		Turn{Role: "assistant", Content: assistant},
	)
	return true
}

// FinishTurn clears the processing flag if token is still the current
// response. A stale token leaves the state of the newer turn untouched.
func (s *Session) FinishTurn(token string) {
	s.mu.Lock()
	if token == s.currentResponseID {
		s.processing = false
	}
	s.mu.Unlock()
}

// Interrupt abandons the in-flight response: the current id is cleared so
// every pending stage fails its fencing check, processing stops, and the
// conversation history is kept.
func (s *Session) Interrupt() {
	s.mu.Lock()
	s.currentResponseID = ""
	s.processing = false
	s.mu.Unlock()
}

// ResetState clears the processing flags without touching history. Used by
// the client's reset_state action when its controller restarts.
func (s *Session) ResetState() {
	s.Interrupt()
}

// Processing reports whether a response is currently being produced.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// TouchAudio records audio receipt for idle eviction.
func (s *Session) TouchAudio() {
	s.mu.Lock()
	s.lastAudioAt = time.Now()
	s.mu.Unlock()
}

// LastAudio returns when the session last received audio.
func (s *Session) LastAudio() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAudioAt
}

// SetLanguage updates the session language ("es", "en", "fr", "it").
func (s *Session) SetLanguage(lang string) {
	if lang == "" {
		return
	}
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()
}

// Language returns the session language.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// LastTranscript returns the previous accepted utterance, the reference for
// duplicate detection.
func (s *Session) LastTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTranscript
}

// SetLastTranscript records an accepted utterance.
func (s *Session) SetLastTranscript(text string) {
	s.mu.Lock()
	s.lastTranscript = text
	s.mu.Unlock()
}

// AppendExchange adds a completed user/assistant exchange to the history.
func (s *Session) AppendExchange(user, assistant string) {
	s.mu.Lock()
	s.history = append(s.history,
		Turn{Role: "user", Content: user},
		Turn{Role: "assistant", Content: assistant},
	)
	s.mu.Unlock()
}

// SeedHistory replaces the history with turns supplied by the client, used
// when a returning client restores a prior conversation.
func (s *Session) SeedHistory(turns []Turn) {
	if len(turns) == 0 {
		return
	}
	s.mu.Lock()
	s.history = append([]Turn(nil), turns...)
	s.mu.Unlock()
}

// RecentHistory returns up to HistoryWindow most recent turns.
func (s *Session) RecentHistory() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if n > HistoryWindow {
		n = HistoryWindow
	}
	out := make([]Turn, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

package session

import (
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// StoreConfig controls session and message retention.
type StoreConfig struct {
	// SessionTTL evicts a session that has received no audio for this long.
	SessionTTL time.Duration
	// MessageTTL is how long delivered-or-not outbox messages survive.
	MessageTTL time.Duration
	// SweepInterval is how often the message sweeper runs.
	SweepInterval time.Duration
}

// DefaultStoreConfig returns the production retention windows.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		SessionTTL:    time.Hour,
		MessageTTL:    2 * time.Minute,
		SweepInterval: 30 * time.Second,
	}
}

// Store maps clientId to live sessions. Sessions are created lazily on
// first contact and evicted after SessionTTL without audio; the go-cache
// janitor does the eviction, audio receipt refreshes the TTL.
type Store struct {
	cfg    StoreConfig
	logger *slog.Logger
	cache  *gocache.Cache

	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

// NewStore creates a store and starts its message sweeper.
func NewStore(cfg StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		cfg:    cfg,
		logger: logger,
		cache:  gocache.New(cfg.SessionTTL, cfg.SessionTTL/2),
		done:   make(chan struct{}),
	}
	s.cache.OnEvicted(func(clientID string, v any) {
		logger.Info("session evicted", "client_id", clientID)
	})
	go s.sweepLoop()
	return s
}

// Get returns the session for clientID, creating it (and emitting the
// connected message) on first contact.
func (s *Store) Get(clientID string) *Session {
	if v, ok := s.cache.Get(clientID); ok {
		return v.(*Session)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(clientID); ok {
		return v.(*Session)
	}
	sess := New(clientID)
	s.cache.SetDefault(clientID, sess)
	s.logger.Info("session created", "client_id", clientID)
	return sess
}

// Lookup returns the session without creating one.
func (s *Store) Lookup(clientID string) (*Session, bool) {
	v, ok := s.cache.Get(clientID)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Touch refreshes the session TTL. Called on every accepted audio blob.
func (s *Store) Touch(clientID string) {
	if v, ok := s.cache.Get(clientID); ok {
		sess := v.(*Session)
		sess.TouchAudio()
		s.cache.SetDefault(clientID, sess)
	}
}

// Len reports how many sessions are live.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Close stops the sweeper. Sessions themselves need no teardown.
func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepMessages()
		}
	}
}

func (s *Store) sweepMessages() {
	for clientID, item := range s.cache.Items() {
		sess := item.Object.(*Session)
		if n := sess.Outbox.Sweep(s.cfg.MessageTTL); n > 0 {
			s.logger.Debug("swept outbox messages", "client_id", clientID, "removed", n)
		}
	}
}

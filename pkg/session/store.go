package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StoreConfig controls session lifetime and the background sweep.
type StoreConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	return c
}

// Store is a concurrency-safe registry of call sessions. The telephony
// provider delivers events for one call sequentially, so per-call
// mutations only need the store's read-modify-write; cross-call safety is
// the store's job. Sessions that never see a terminal event are reclaimed
// by the sweep after the inactivity TTL.
type Store struct {
	cfg StoreConfig
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*CallSession

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewStore(cfg StoreConfig, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		cfg:      cfg.withDefaults(),
		log:      log,
		sessions: make(map[string]*CallSession),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// GetOrCreate returns the session for callID, creating it lazily on the
// first event. The second return reports whether it was created.
func (s *Store) GetOrCreate(callID string) (*CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[callID]; ok {
		sess.Touch(s.now())
		return sess, false
	}
	now := s.now()
	sess := &CallSession{
		CallID:      callID,
		CreatedAt:   now,
		LastTouched: now,
		State:       StateNew,
	}
	s.sessions[callID] = sess
	return sess, true
}

// Get returns the session for callID, if present.
func (s *Store) Get(callID string) (*CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[callID]
	return sess, ok
}

// Update applies fn to the session under the store lock, creating the
// session first if needed. Handlers racing a TTL sweep simply see a fresh
// session; fn must tolerate that.
func (s *Store) Update(callID string, fn func(*CallSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		now := s.now()
		sess = &CallSession{
			CallID:      callID,
			CreatedAt:   now,
			LastTouched: now,
			State:       StateNew,
		}
		s.sessions[callID] = sess
	}
	fn(sess)
	sess.Touch(s.now())
}

// Delete removes the session for callID.
func (s *Store) Delete(callID string) {
	s.mu.Lock()
	delete(s.sessions, callID)
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Start runs the TTL sweep until ctx is done or Stop is called. The sweep
// interval is fixed and independent of call traffic.
func (s *Store) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if n := s.Sweep(s.now()); n > 0 {
					s.log.Info("session_sweep", "evicted", n, "remaining", s.Len())
				}
			}
		}
	}()
	return nil
}

// Stop halts the background sweep.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Sweep evicts sessions whose inactivity exceeds the TTL and returns how
// many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastTouched) > s.cfg.TTL {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

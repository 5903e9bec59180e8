package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/importwizard/internal/wizard"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when the store is at capacity.
	ErrTooManySessions = errors.New("too many active sessions")
)

// SessionStore holds the live wizard sessions of the HTTP shell.
// Sessions idle longer than the TTL are removed by Sweep.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*wizard.Session
	backend  wizard.Backend
	ttl      time.Duration
	max      int
	now      func() time.Time
}

// NewSessionStore creates an empty store. max <= 0 means unlimited.
func NewSessionStore(backend wizard.Backend, ttl time.Duration, max int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*wizard.Session),
		backend:  backend,
		ttl:      ttl,
		max:      max,
		now:      time.Now,
	}
}

// Create starts a new session.
func (s *SessionStore) Create() (*wizard.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, ErrTooManySessions
	}
	sess := wizard.NewSession(s.backend)
	s.sessions[sess.ID()] = sess
	return sess, nil
}

// Get returns a live session.
func (s *SessionStore) Get(id string) (*wizard.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || s.expired(sess) {
		return nil, ErrSessionNotFound
	}
	sess.Touch()
	return sess, nil
}

// Delete drops a session. Deleting an unknown ID is not an error.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Info("expired wizard sessions removed", "count", n, "remaining", s.Len())
			}
		}
	}
}

func (s *SessionStore) expired(sess *wizard.Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.LastActive()) > s.ttl
}

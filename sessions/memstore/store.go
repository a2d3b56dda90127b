// Package memstore keeps session records in process memory.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-cda-server/sessions"
)

var _ sessions.Store = (*Store)(nil)

// Store is an in-memory implementation of sessions.Store
type Store struct {
	mu       sync.RWMutex
	sessions map[string]sessions.Session // key -> session
}

// New creates an empty in-memory session store
func New() *Store {
	return &Store{
		sessions: make(map[string]sessions.Session),
	}
}

// ListActive returns every session whose expiry is not before now, ordered by key
func (s *Store) ListActive(_ context.Context, now time.Time) ([]sessions.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]sessions.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Active(now) {
			active = append(active, session)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Key < active[j].Key })
	return active, nil
}

// Get retrieves a session by key
func (s *Store) Get(_ context.Context, key string) (sessions.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[key]
	if !ok {
		return sessions.Session{}, sessions.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a session
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key) // Already doesn't exist, no error
	return nil
}

// Save creates or replaces a session
func (s *Store) Save(_ context.Context, session sessions.Session) error {
	if session.Key == "" {
		return errors.New("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Key] = session
	return nil
}

// DeleteExpired removes every session that expired before now
func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, session := range s.sessions {
		if !session.Active(now) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Package storage keeps per-session conversation history for protected
// runs. The store is in-memory; history does not survive a restart.
package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

// SessionStore is a concurrency-safe transcript store keyed by session ID.
// Readers always receive copies, so callers can hold results across later
// appends.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.SessionEntry
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string][]domain.SessionEntry),
	}
}

// Append records one turn of a session's history. An empty session ID is
// ignored. None of the store's methods block, so there is no context here;
// the orchestrator calls this synchronously at the end of a run.
func (s *SessionStore) Append(sessionID string, entry domain.SessionEntry) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], entry)
}

// History returns the full transcript of a session in append order.
func (s *SessionStore) History(sessionID string) ([]domain.SessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("storage: session %q: %w", sessionID, domain.ErrSessionNotFound)
	}
	out := make([]domain.SessionEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Recent returns up to n of the most recent entries for a session, oldest
// first. n <= 0 returns the whole transcript. An unknown session yields an
// empty slice.
func (s *SessionStore) Recent(sessionID string, n int) []domain.SessionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sessions[sessionID]
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]domain.SessionEntry, n)
	copy(out, entries[len(entries)-n:])
	return out
}

// Clear drops a session's history. Clearing an unknown session is a no-op.
func (s *SessionStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sessions returns the IDs of every session with recorded history, sorted.
func (s *SessionStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package session

import (
	"context"
	"sync"
	"time"

	"helpdesk/internal/domain"
)

// MemoryStore keeps conversation state in a process-local map. Records are
// cloned on the way in and out so callers never share memory with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ConversationState
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.ConversationState),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*domain.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state.Clone(), nil
}

func (s *MemoryStore) CreateOrGet(_ context.Context, sessionID string) (*domain.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.sessions[sessionID]; ok {
		return state.Clone(), nil
	}
	state := domain.NewConversationState(sessionID, s.now())
	s.sessions[sessionID] = state
	return state.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, state *domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[state.SessionID] = state.Clone()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) ExpireIdle(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, state := range s.sessions {
		if state.LastActiveAt.Before(cutoff) {
			delete(s.sessions, id)
			expired++
		}
	}
	return expired, nil
}

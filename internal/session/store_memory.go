package session

import (
	"context"
	"fmt"
	"sync"

	"proctor/pkg/platform/sentinel"
)

// InMemoryStateStore keeps attempt state in memory for tests and dev runs.
type InMemoryStateStore struct {
	mu       sync.RWMutex
	attempts map[string]*AttemptState
}

func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{attempts: make(map[string]*AttemptState)}
}

func attemptKey(userID, olympiadID string) string {
	return userID + ":" + olympiadID
}

func (s *InMemoryStateStore) Load(_ context.Context, userID, olympiadID string) (*AttemptState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.attempts[attemptKey(userID, olympiadID)]; ok {
		clone := *state
		clone.Answers = copyAnswers(state.Answers)
		return &clone, nil
	}
	return nil, fmt.Errorf("attempt state: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStateStore) Save(_ context.Context, state *AttemptState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *state
	clone.Answers = copyAnswers(state.Answers)
	s.attempts[attemptKey(state.UserID, state.OlympiadID)] = &clone
	return nil
}

func (s *InMemoryStateStore) Delete(_ context.Context, userID, olympiadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, attemptKey(userID, olympiadID))
	return nil
}

func copyAnswers(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

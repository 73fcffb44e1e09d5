package memory

import (
	"context"
	"sync"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// TransitionStore is an in-memory implementation of storage.TransitionStore.
type TransitionStore struct {
	mu          sync.RWMutex
	transitions []*domain.SignalTransition
}

// NewTransitionStore creates a new in-memory transition store.
func NewTransitionStore() *TransitionStore {
	return &TransitionStore{}
}

// Compile-time interface check.
var _ storage.TransitionStore = (*TransitionStore)(nil)

// InsertBulk appends transition events.
func (s *TransitionStore) InsertBulk(_ context.Context, transitions []*domain.SignalTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tr := range transitions {
		if tr == nil || tr.SignalID == "" {
			return storage.ErrInvalidInput
		}
		trCopy := *tr
		s.transitions = append(s.transitions, &trCopy)
	}
	return nil
}

// All returns a copy of every recorded transition, in insertion order.
// Test helper, not part of storage.TransitionStore.
func (s *TransitionStore) All() []*domain.SignalTransition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SignalTransition, len(s.transitions))
	for i, tr := range s.transitions {
		trCopy := *tr
		result[i] = &trCopy
	}
	return result
}

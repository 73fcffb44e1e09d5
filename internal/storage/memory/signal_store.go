package memory

import (
	"context"
	"sort"
	"sync"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu      sync.Mutex
	signals map[string]*domain.Signal // keyed by signal_id
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		signals: make(map[string]*domain.Signal),
	}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// CreateIfNoRecent inserts the signal unless another signal for the same
// (instrument, direction) was created at or after since. The mutex makes
// the cooldown re-check and the insert one atomic operation.
func (s *SignalStore) CreateIfNoRecent(_ context.Context, sig *domain.Signal, since int64) (bool, error) {
	if sig == nil || sig.SignalID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.signals[sig.SignalID]; exists {
		return false, storage.ErrDuplicateKey
	}

	for _, existing := range s.signals {
		if existing.Instrument == sig.Instrument &&
			existing.Direction == sig.Direction &&
			existing.CreatedAt >= since {
			return false, nil
		}
	}

	s.signals[sig.SignalID] = copySignal(sig)
	return true, nil
}

// GetByID retrieves a signal with participants and targets.
func (s *SignalStore) GetByID(_ context.Context, signalID string) (*domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, exists := s.signals[signalID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copySignal(sig), nil
}

// GetActive retrieves all OPEN and PARTIAL_TP signals, ordered by
// created_at ASC.
func (s *SignalStore) GetActive(_ context.Context) ([]*domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Signal
	for _, sig := range s.signals {
		if sig.Status == domain.StatusOpen || sig.Status == domain.StatusPartialTP {
			result = append(result, copySignal(sig))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].SignalID < result[j].SignalID
	})

	return result, nil
}

// MarkTargetHit sets the hit flag of one rung. Returns false when the rung
// was already hit.
func (s *SignalStore) MarkTargetHit(_ context.Context, signalID string, index int, hitAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, exists := s.signals[signalID]
	if !exists {
		return false, storage.ErrNotFound
	}

	for _, tgt := range sig.Targets {
		if tgt.Index != index {
			continue
		}
		if tgt.Hit {
			return false, nil
		}
		tgt.Hit = true
		tgt.HitAt = hitAt
		sig.UpdatedAt = hitAt
		return true, nil
	}

	return false, storage.ErrNotFound
}

// TransitionStatus advances the signal status when the move is monotone
// forward; returns false with a nil error otherwise.
func (s *SignalStore) TransitionStatus(_ context.Context, signalID string, to domain.SignalStatus, updatedAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, exists := s.signals[signalID]
	if !exists {
		return false, storage.ErrNotFound
	}

	if !domain.CanTransition(sig.Status, to) {
		return false, nil
	}

	sig.Status = to
	sig.UpdatedAt = updatedAt
	return true, nil
}

// copySignal deep-copies a signal with its participants and targets.
func copySignal(sig *domain.Signal) *domain.Signal {
	sigCopy := *sig
	sigCopy.Participants = make([]*domain.SignalParticipant, len(sig.Participants))
	for i, p := range sig.Participants {
		pCopy := *p
		sigCopy.Participants[i] = &pCopy
	}
	sigCopy.Targets = make([]*domain.SignalTarget, len(sig.Targets))
	for i, tgt := range sig.Targets {
		tCopy := *tgt
		sigCopy.Targets[i] = &tCopy
	}
	return &sigCopy
}

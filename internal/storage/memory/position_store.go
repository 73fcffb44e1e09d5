package memory

import (
	"context"
	"sort"
	"sync"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu        sync.RWMutex
	positions []*domain.Position
	seenKeys  map[string]struct{}
	nextID    int64
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		seenKeys: make(map[string]struct{}),
		nextID:   1,
	}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// InsertWithKey persists the position and its idempotency key atomically.
// Returns ErrDuplicateKey if the key was already recorded.
func (s *PositionStore) InsertWithKey(_ context.Context, p *domain.Position) error {
	if p == nil || p.IdempotencyKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seenKeys[p.IdempotencyKey]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	posCopy := *p
	posCopy.ID = s.nextID
	s.nextID++
	s.positions = append(s.positions, &posCopy)
	s.seenKeys[p.IdempotencyKey] = struct{}{}
	return nil
}

// SeenKey reports whether an idempotency key has been recorded.
func (s *PositionStore) SeenKey(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.seenKeys[key]
	return exists, nil
}

// GetOpenInWindow retrieves not-superseded positions for (instrument,
// direction) with entry_time >= since, ordered by entry_time ASC, id ASC.
func (s *PositionStore) GetOpenInWindow(_ context.Context, instrument string, direction domain.Direction, since int64) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.positions {
		if p.Superseded || p.Instrument != instrument || p.Direction != direction || p.EntryTime < since {
			continue
		}
		posCopy := *p
		result = append(result, &posCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryTime != result[j].EntryTime {
			return result[i].EntryTime < result[j].EntryTime
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// GetOpenByWallet retrieves all not-superseded positions for a wallet.
func (s *PositionStore) GetOpenByWallet(_ context.Context, wallet string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.positions {
		if p.Superseded || p.Wallet != wallet {
			continue
		}
		posCopy := *p
		result = append(result, &posCopy)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Supersede marks every open position of (wallet, instrument) as superseded.
func (s *PositionStore) Supersede(_ context.Context, wallet, instrument string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.positions {
		if p.Wallet == wallet && p.Instrument == instrument {
			p.Superseded = true
		}
	}
	return nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// PerformanceStore is an in-memory implementation of storage.PerformanceStore.
type PerformanceStore struct {
	mu      sync.RWMutex
	records []*domain.PerformanceRecord
	keys    map[string]struct{} // signal_id|timeframe
}

// NewPerformanceStore creates a new in-memory performance store.
func NewPerformanceStore() *PerformanceStore {
	return &PerformanceStore{
		keys: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.PerformanceStore = (*PerformanceStore)(nil)

// InsertBulk adds records atomically. Fails entire batch on any duplicate
// (signal, timeframe).
func (s *PerformanceStore) InsertBulk(_ context.Context, records []*domain.PerformanceRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check all keys before mutating anything (both-or-neither)
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.SignalID == "" {
			return storage.ErrInvalidInput
		}
		key := r.SignalID + "|" + string(r.Timeframe)
		if _, dup := s.keys[key]; dup {
			return storage.ErrDuplicateKey
		}
		if _, dup := seen[key]; dup {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	for _, r := range records {
		recCopy := *r
		s.records = append(s.records, &recCopy)
		s.keys[r.SignalID+"|"+string(r.Timeframe)] = struct{}{}
	}
	return nil
}

// GetBySignal retrieves all records for a signal.
func (s *PerformanceStore) GetBySignal(_ context.Context, signalID string) ([]*domain.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PerformanceRecord
	for _, r := range s.records {
		if r.SignalID == signalID {
			recCopy := *r
			result = append(result, &recCopy)
		}
	}
	return result, nil
}

// GetByTimeframe retrieves records in a bucket with computed_at >= since,
// ordered by computed_at ASC.
func (s *PerformanceStore) GetByTimeframe(_ context.Context, tf domain.Timeframe, since int64) ([]*domain.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PerformanceRecord
	for _, r := range s.records {
		if r.Timeframe == tf && r.ComputedAt >= since {
			recCopy := *r
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ComputedAt != result[j].ComputedAt {
			return result[i].ComputedAt < result[j].ComputedAt
		}
		return result[i].SignalID < result[j].SignalID
	})

	return result, nil
}

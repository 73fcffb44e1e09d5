package clickhouse

import (
	"context"
	"fmt"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// TransitionStore implements storage.TransitionStore using ClickHouse.
// Transitions are append-only analytics rows; the store never reads them
// back on the hot path.
type TransitionStore struct {
	conn *Conn
}

// NewTransitionStore creates a new TransitionStore.
func NewTransitionStore(conn *Conn) *TransitionStore {
	return &TransitionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransitionStore = (*TransitionStore)(nil)

// InsertBulk appends transitions using the native batch interface.
func (s *TransitionStore) InsertBulk(ctx context.Context, transitions []*domain.SignalTransition) error {
	if len(transitions) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO signal_transitions (
			signal_id, instrument, direction, from_status, to_status, price, target_index, occurred_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare transitions batch: %w", err)
	}

	for _, t := range transitions {
		err := batch.Append(
			t.SignalID,
			t.Instrument,
			string(t.Direction),
			string(t.FromStatus),
			string(t.ToStatus),
			t.Price,
			int32(t.TargetIndex),
			t.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("append transition: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send transitions batch: %w", err)
	}

	return nil
}

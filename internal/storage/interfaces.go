package storage

import (
	"context"

	"perp-signal-engine/internal/domain"
)

// WalletStore provides access to the watched wallet set.
type WalletStore interface {
	// List returns all watched wallet addresses.
	List(ctx context.Context) ([]string, error)

	// Upsert adds a wallet to the watched set. Idempotent.
	Upsert(ctx context.Context, wallet string) error
}

// PositionStore provides access to positions and their dedup keys.
type PositionStore interface {
	// InsertWithKey persists the position and records its idempotency key
	// atomically (both-or-neither). Returns ErrDuplicateKey if the key was
	// already recorded.
	InsertWithKey(ctx context.Context, p *domain.Position) error

	// SeenKey reports whether an idempotency key has been recorded.
	SeenKey(ctx context.Context, key string) (bool, error)

	// GetOpenInWindow retrieves not-superseded positions for
	// (instrument, direction) with entry_time >= since, ordered by
	// entry_time ASC, id ASC.
	GetOpenInWindow(ctx context.Context, instrument string, direction domain.Direction, since int64) ([]*domain.Position, error)

	// GetOpenByWallet retrieves all not-superseded positions for a wallet.
	GetOpenByWallet(ctx context.Context, wallet string) ([]*domain.Position, error)

	// Supersede marks every open position of (wallet, instrument) as
	// superseded. Called when exposure reaches zero or reverses direction.
	Supersede(ctx context.Context, wallet, instrument string) error
}

// SignalStore provides access to signals, participants, and targets.
type SignalStore interface {
	// CreateIfNoRecent inserts the signal with its participants and targets
	// unless another signal for the same (instrument, direction) was
	// created at or after since. The cooldown re-check and the insert are
	// one atomic operation with respect to concurrent evaluators.
	// Returns false with a nil error when the cooldown suppressed creation.
	CreateIfNoRecent(ctx context.Context, s *domain.Signal, since int64) (bool, error)

	// GetByID retrieves a signal with participants and targets.
	// Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, signalID string) (*domain.Signal, error)

	// GetActive retrieves all OPEN and PARTIAL_TP signals with their
	// targets and participants, ordered by created_at ASC.
	GetActive(ctx context.Context) ([]*domain.Signal, error)

	// MarkTargetHit sets the hit flag of one rung. Monotone: returns false
	// with a nil error when the rung was already hit.
	MarkTargetHit(ctx context.Context, signalID string, index int, hitAt int64) (bool, error)

	// TransitionStatus advances the signal status. Applied only when the
	// move is monotone forward; returns false with a nil error otherwise,
	// so re-running a sweep over an already-terminal signal is a no-op.
	TransitionStatus(ctx context.Context, signalID string, to domain.SignalStatus, updatedAt int64) (bool, error)
}

// ConfigStore provides access to the engine configuration row.
type ConfigStore interface {
	// Get retrieves the current engine configuration.
	// Returns ErrNotFound when no row has been written yet.
	Get(ctx context.Context) (*domain.EngineConfig, error)

	// Update validates and replaces the engine configuration.
	Update(ctx context.Context, cfg *domain.EngineConfig) error
}

// PerformanceStore provides access to performance records.
type PerformanceStore interface {
	// InsertBulk adds records for all timeframe buckets of one close
	// atomically. Fails entire batch on any duplicate (signal, timeframe).
	InsertBulk(ctx context.Context, records []*domain.PerformanceRecord) error

	// GetBySignal retrieves all records for a signal.
	GetBySignal(ctx context.Context, signalID string) ([]*domain.PerformanceRecord, error)

	// GetByTimeframe retrieves records in a bucket with computed_at >= since,
	// ordered by computed_at ASC.
	GetByTimeframe(ctx context.Context, tf domain.Timeframe, since int64) ([]*domain.PerformanceRecord, error)
}

// TransitionStore records discrete signal state transitions for analytics.
type TransitionStore interface {
	// InsertBulk appends transition events. Append-only.
	InsertBulk(ctx context.Context, transitions []*domain.SignalTransition) error
}

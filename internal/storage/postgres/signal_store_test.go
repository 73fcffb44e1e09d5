package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

func testSignal(id string) *domain.Signal {
	return &domain.Signal{
		SignalID:       id,
		Instrument:     "ETH",
		Direction:      domain.DirectionLong,
		ReferencePrice: 2450.50,
		AvgSize:        1.2,
		StopLossPct:    -2.5,
		Status:         domain.StatusOpen,
		CreatedAt:      1700000000000,
		UpdatedAt:      1700000000000,
		Participants: []*domain.SignalParticipant{
			{SignalID: id, Wallet: "0xaaa", EntryPrice: 2449.00, Size: 1.0, Leverage: 10},
			{SignalID: id, Wallet: "0xbbb", EntryPrice: 2452.00, Size: 1.4, Leverage: 5},
		},
		Targets: []*domain.SignalTarget{
			{SignalID: id, Index: 0, TargetPct: 2.0, TargetPrice: 2499.51},
			{SignalID: id, Index: 1, TargetPct: 3.5, TargetPrice: 2536.27},
			{SignalID: id, Index: 2, TargetPct: 5.0, TargetPrice: 2573.03},
		},
	}
}

func TestSignalStore_CreateAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := testSignal("signal-001")

	created, err := store.CreateIfNoRecent(ctx, sig, 0)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := store.GetByID(ctx, "signal-001")
	require.NoError(t, err)

	assert.Equal(t, sig.Instrument, got.Instrument)
	assert.Equal(t, sig.Direction, got.Direction)
	assert.Equal(t, sig.ReferencePrice, got.ReferencePrice)
	assert.Equal(t, sig.AvgSize, got.AvgSize)
	assert.Equal(t, sig.StopLossPct, got.StopLossPct)
	assert.Equal(t, domain.StatusOpen, got.Status)

	require.Len(t, got.Participants, 2)
	assert.Equal(t, "0xaaa", got.Participants[0].Wallet)
	assert.Equal(t, "0xbbb", got.Participants[1].Wallet)

	require.Len(t, got.Targets, 3)
	for i, tgt := range got.Targets {
		assert.Equal(t, i, tgt.Index)
		assert.False(t, tgt.Hit)
		assert.Zero(t, tgt.HitAt)
	}
}

func TestSignalStore_CreateSuppressedByCooldown(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	first := testSignal("signal-cool-1")
	created, err := store.CreateIfNoRecent(ctx, first, 0)
	require.NoError(t, err)
	require.True(t, created)

	// Same (instrument, direction) inside the cooldown window: suppressed
	second := testSignal("signal-cool-2")
	second.CreatedAt = first.CreatedAt + 60000
	created, err = store.CreateIfNoRecent(ctx, second, first.CreatedAt)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = store.GetByID(ctx, "signal-cool-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Opposite direction is an independent cooldown scope
	short := testSignal("signal-cool-3")
	short.Direction = domain.DirectionShort
	created, err = store.CreateIfNoRecent(ctx, short, first.CreatedAt)
	require.NoError(t, err)
	assert.True(t, created)

	// Cooldown expired: allowed again
	third := testSignal("signal-cool-4")
	third.CreatedAt = first.CreatedAt + 600000
	created, err = store.CreateIfNoRecent(ctx, third, first.CreatedAt+300000)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSignalStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "nonexistent-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSignalStore_GetActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	open := testSignal("signal-active-1")
	created, err := store.CreateIfNoRecent(ctx, open, 0)
	require.NoError(t, err)
	require.True(t, created)

	partial := testSignal("signal-active-2")
	partial.Instrument = "BTC"
	partial.CreatedAt = open.CreatedAt + 1000
	created, err = store.CreateIfNoRecent(ctx, partial, 0)
	require.NoError(t, err)
	require.True(t, created)

	closed := testSignal("signal-active-3")
	closed.Instrument = "SOL"
	closed.CreatedAt = open.CreatedAt + 2000
	created, err = store.CreateIfNoRecent(ctx, closed, 0)
	require.NoError(t, err)
	require.True(t, created)

	_, err = store.TransitionStatus(ctx, "signal-active-2", domain.StatusPartialTP, 1700000100000)
	require.NoError(t, err)
	_, err = store.TransitionStatus(ctx, "signal-active-3", domain.StatusSLHit, 1700000100000)
	require.NoError(t, err)

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// Ordered by created_at ASC, children loaded
	assert.Equal(t, "signal-active-1", active[0].SignalID)
	assert.Equal(t, "signal-active-2", active[1].SignalID)
	assert.Len(t, active[0].Targets, 3)
	assert.Len(t, active[0].Participants, 2)
	assert.Len(t, active[1].Targets, 3)
}

func TestSignalStore_MarkTargetHit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := testSignal("signal-hit-1")
	created, err := store.CreateIfNoRecent(ctx, sig, 0)
	require.NoError(t, err)
	require.True(t, created)

	hit, err := store.MarkTargetHit(ctx, "signal-hit-1", 0, 1700000100000)
	require.NoError(t, err)
	assert.True(t, hit)

	// Already hit: no-op
	hit, err = store.MarkTargetHit(ctx, "signal-hit-1", 0, 1700000200000)
	require.NoError(t, err)
	assert.False(t, hit)

	got, err := store.GetByID(ctx, "signal-hit-1")
	require.NoError(t, err)
	require.Len(t, got.Targets, 3)

	assert.True(t, got.Targets[0].Hit)
	assert.Equal(t, int64(1700000100000), got.Targets[0].HitAt)
	assert.False(t, got.Targets[1].Hit)
	assert.False(t, got.Targets[2].Hit)
	assert.Equal(t, int64(1700000100000), got.UpdatedAt)
}

func TestSignalStore_TransitionStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := testSignal("signal-trans-1")
	created, err := store.CreateIfNoRecent(ctx, sig, 0)
	require.NoError(t, err)
	require.True(t, created)

	// OPEN -> PARTIAL_TP
	ok, err := store.TransitionStatus(ctx, "signal-trans-1", domain.StatusPartialTP, 1700000100000)
	require.NoError(t, err)
	assert.True(t, ok)

	// PARTIAL_TP -> PARTIAL_TP is not a move
	ok, err = store.TransitionStatus(ctx, "signal-trans-1", domain.StatusPartialTP, 1700000200000)
	require.NoError(t, err)
	assert.False(t, ok)

	// PARTIAL_TP -> TP_HIT
	ok, err = store.TransitionStatus(ctx, "signal-trans-1", domain.StatusTPHit, 1700000300000)
	require.NoError(t, err)
	assert.True(t, ok)

	// Terminal state never changes
	ok, err = store.TransitionStatus(ctx, "signal-trans-1", domain.StatusSLHit, 1700000400000)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetByID(ctx, "signal-trans-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTPHit, got.Status)
	assert.Equal(t, int64(1700000300000), got.UpdatedAt)
}

func TestSignalStore_TransitionToOpenRejected(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := testSignal("signal-trans-2")
	created, err := store.CreateIfNoRecent(ctx, sig, 0)
	require.NoError(t, err)
	require.True(t, created)

	_, err = store.TransitionStatus(ctx, "signal-trans-2", domain.StatusOpen, 1700000100000)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)
}

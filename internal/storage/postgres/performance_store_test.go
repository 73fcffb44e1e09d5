package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

func testRecords(signalID string, computedAt int64) []*domain.PerformanceRecord {
	records := make([]*domain.PerformanceRecord, 0, len(domain.RetainedTimeframes))
	for _, tf := range domain.RetainedTimeframes {
		records = append(records, &domain.PerformanceRecord{
			SignalID:    signalID,
			Timeframe:   tf,
			Outcome:     domain.OutcomeWin,
			PnL:         1100.0,
			FundingCost: 8.42,
			ExitPrice:   41000.0,
			DurationMs:  3600000,
			MaxDrawdown: -0.8,
			ComputedAt:  computedAt,
		})
	}
	return records
}

func TestPerformanceStore_InsertBulkAndGetBySignal(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPerformanceStore(pool)
	ctx := context.Background()

	err := store.InsertBulk(ctx, testRecords("signal-perf-1", 1700000000000))
	require.NoError(t, err)

	records, err := store.GetBySignal(ctx, "signal-perf-1")
	require.NoError(t, err)
	require.Len(t, records, len(domain.RetainedTimeframes))

	got := records[0]
	assert.Equal(t, "signal-perf-1", got.SignalID)
	assert.Equal(t, domain.OutcomeWin, got.Outcome)
	assert.Equal(t, 1100.0, got.PnL)
	assert.Equal(t, 8.42, got.FundingCost)
	assert.Equal(t, 41000.0, got.ExitPrice)
	assert.Equal(t, int64(3600000), got.DurationMs)
	assert.Equal(t, -0.8, got.MaxDrawdown)

	seen := make(map[domain.Timeframe]bool)
	for _, r := range records {
		seen[r.Timeframe] = true
	}
	for _, tf := range domain.RetainedTimeframes {
		assert.True(t, seen[tf], "missing bucket %s", tf)
	}
}

func TestPerformanceStore_InsertBulkEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPerformanceStore(pool)
	ctx := context.Background()

	err := store.InsertBulk(ctx, nil)
	require.NoError(t, err)
}

func TestPerformanceStore_InsertBulkDuplicateRollsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPerformanceStore(pool)
	ctx := context.Background()

	// Pre-insert one bucket of the batch
	err := store.InsertBulk(ctx, []*domain.PerformanceRecord{
		{
			SignalID:   "signal-perf-dup",
			Timeframe:  domain.TimeframeWeekly,
			Outcome:    domain.OutcomeLoss,
			PnL:        -500.0,
			ExitPrice:  39000.0,
			ComputedAt: 1700000000000,
		},
	})
	require.NoError(t, err)

	err = store.InsertBulk(ctx, testRecords("signal-perf-dup", 1700000100000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Batch is both-or-neither: only the pre-inserted row survives
	records, err := store.GetBySignal(ctx, "signal-perf-dup")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.TimeframeWeekly, records[0].Timeframe)
	assert.Equal(t, domain.OutcomeLoss, records[0].Outcome)
}

func TestPerformanceStore_GetByTimeframe(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPerformanceStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, testRecords("signal-tf-old", 1699000000000)))
	require.NoError(t, store.InsertBulk(ctx, testRecords("signal-tf-a", 1700000000000)))
	require.NoError(t, store.InsertBulk(ctx, testRecords("signal-tf-b", 1700000100000)))

	records, err := store.GetByTimeframe(ctx, domain.TimeframeDaily, 1700000000000)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Ordered by computed_at ASC, restricted to the requested bucket
	assert.Equal(t, "signal-tf-a", records[0].SignalID)
	assert.Equal(t, "signal-tf-b", records[1].SignalID)
	for _, r := range records {
		assert.Equal(t, domain.TimeframeDaily, r.Timeframe)
	}
}

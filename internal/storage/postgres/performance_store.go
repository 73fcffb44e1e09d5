package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// PerformanceStore implements storage.PerformanceStore using PostgreSQL.
type PerformanceStore struct {
	pool *Pool
}

// NewPerformanceStore creates a new PerformanceStore.
func NewPerformanceStore(pool *Pool) *PerformanceStore {
	return &PerformanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PerformanceStore = (*PerformanceStore)(nil)

// InsertBulk adds records for all timeframe buckets of one close
// atomically. Fails entire batch on any duplicate (signal, timeframe).
func (s *PerformanceStore) InsertBulk(ctx context.Context, records []*domain.PerformanceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO performance_records (
			signal_id, timeframe, outcome, pnl, funding_cost, exit_price, duration_ms, max_drawdown, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, r := range records {
		_, err := tx.Exec(ctx, query,
			r.SignalID,
			string(r.Timeframe),
			string(r.Outcome),
			r.PnL,
			r.FundingCost,
			r.ExitPrice,
			r.DurationMs,
			r.MaxDrawdown,
			r.ComputedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert performance record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetBySignal retrieves all records for a signal.
func (s *PerformanceStore) GetBySignal(ctx context.Context, signalID string) ([]*domain.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signal_id, timeframe, outcome, pnl, funding_cost, exit_price, duration_ms, max_drawdown, computed_at
		FROM performance_records
		WHERE signal_id = $1
		ORDER BY timeframe ASC
	`, signalID)
	if err != nil {
		return nil, fmt.Errorf("get records by signal: %w", err)
	}
	defer rows.Close()

	return scanPerformanceRecords(rows)
}

// GetByTimeframe retrieves records in a bucket with computed_at >= since,
// ordered by computed_at ASC.
func (s *PerformanceStore) GetByTimeframe(ctx context.Context, tf domain.Timeframe, since int64) ([]*domain.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signal_id, timeframe, outcome, pnl, funding_cost, exit_price, duration_ms, max_drawdown, computed_at
		FROM performance_records
		WHERE timeframe = $1 AND computed_at >= $2
		ORDER BY computed_at ASC, signal_id ASC
	`, string(tf), since)
	if err != nil {
		return nil, fmt.Errorf("get records by timeframe: %w", err)
	}
	defer rows.Close()

	return scanPerformanceRecords(rows)
}

// scanPerformanceRecords scans multiple rows into a slice of PerformanceRecord.
func scanPerformanceRecords(rows pgx.Rows) ([]*domain.PerformanceRecord, error) {
	var records []*domain.PerformanceRecord

	for rows.Next() {
		var r domain.PerformanceRecord
		var timeframe, outcome string

		err := rows.Scan(
			&r.SignalID,
			&timeframe,
			&outcome,
			&r.PnL,
			&r.FundingCost,
			&r.ExitPrice,
			&r.DurationMs,
			&r.MaxDrawdown,
			&r.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan performance row: %w", err)
		}
		r.Timeframe = domain.Timeframe(timeframe)
		r.Outcome = domain.Outcome(outcome)

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate performance rows: %w", err)
	}

	return records, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// InsertWithKey persists the position and records its idempotency key in
// one transaction (both-or-neither). Returns ErrDuplicateKey if the key
// was already recorded.
func (s *PositionStore) InsertWithKey(ctx context.Context, p *domain.Position) error {
	if p == nil || p.IdempotencyKey == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO dedup_keys (idempotency_key) VALUES ($1)`,
		p.IdempotencyKey,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert dedup key: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO positions (
			wallet, instrument, direction, entry_price, entry_time, size, leverage, funding_rate, idempotency_key, superseded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
	`,
		p.Wallet,
		p.Instrument,
		string(p.Direction),
		p.EntryPrice,
		p.EntryTime,
		p.Size,
		p.Leverage,
		p.FundingRate,
		p.IdempotencyKey,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// SeenKey reports whether an idempotency key has been recorded.
func (s *PositionStore) SeenKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dedup_keys WHERE idempotency_key = $1)`,
		key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check dedup key: %w", err)
	}
	return exists, nil
}

// GetOpenInWindow retrieves not-superseded positions for (instrument,
// direction) with entry_time >= since, ordered by entry_time ASC, id ASC.
func (s *PositionStore) GetOpenInWindow(ctx context.Context, instrument string, direction domain.Direction, since int64) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet, instrument, direction, entry_price, entry_time, size, leverage, funding_rate, idempotency_key, superseded, created_at
		FROM positions
		WHERE instrument = $1 AND direction = $2 AND entry_time >= $3 AND superseded = FALSE
		ORDER BY entry_time ASC, id ASC
	`, instrument, string(direction), since)
	if err != nil {
		return nil, fmt.Errorf("get positions in window: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetOpenByWallet retrieves all not-superseded positions for a wallet.
func (s *PositionStore) GetOpenByWallet(ctx context.Context, wallet string) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet, instrument, direction, entry_price, entry_time, size, leverage, funding_rate, idempotency_key, superseded, created_at
		FROM positions
		WHERE wallet = $1 AND superseded = FALSE
		ORDER BY id ASC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("get positions by wallet: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// Supersede marks every open position of (wallet, instrument) as superseded.
func (s *PositionStore) Supersede(ctx context.Context, wallet, instrument string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE positions SET superseded = TRUE WHERE wallet = $1 AND instrument = $2 AND superseded = FALSE`,
		wallet, instrument,
	)
	if err != nil {
		return fmt.Errorf("supersede positions: %w", err)
	}
	return nil
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		var p domain.Position
		var direction string

		err := rows.Scan(
			&p.ID,
			&p.Wallet,
			&p.Instrument,
			&direction,
			&p.EntryPrice,
			&p.EntryTime,
			&p.Size,
			&p.Leverage,
			&p.FundingRate,
			&p.IdempotencyKey,
			&p.Superseded,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		p.Direction = domain.Direction(direction)

		positions = append(positions, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}

package postgres

import (
	"context"
	"fmt"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// CreateIfNoRecent inserts the signal with participants and targets unless
// another signal for the same (instrument, direction) was created at or
// after since. A transaction-scoped advisory lock keyed by
// (instrument, direction) serializes concurrent evaluators, so two
// overlapping consensus evaluations cannot both pass the cooldown check.
func (s *SignalStore) CreateIfNoRecent(ctx context.Context, sig *domain.Signal, since int64) (bool, error) {
	if sig == nil || sig.SignalID == "" {
		return false, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock released automatically at commit/rollback
	_, err = tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		sig.Instrument+"|"+string(sig.Direction),
	)
	if err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var recent bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM signals
			WHERE instrument = $1 AND direction = $2 AND created_at >= $3
		)
	`, sig.Instrument, string(sig.Direction), since).Scan(&recent)
	if err != nil {
		return false, fmt.Errorf("check cooldown: %w", err)
	}
	if recent {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO signals (
			signal_id, instrument, direction, reference_price, avg_size, stop_loss_pct, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		sig.SignalID,
		sig.Instrument,
		string(sig.Direction),
		sig.ReferencePrice,
		sig.AvgSize,
		sig.StopLossPct,
		string(sig.Status),
		sig.CreatedAt,
		sig.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, storage.ErrDuplicateKey
		}
		return false, fmt.Errorf("insert signal: %w", err)
	}

	for _, p := range sig.Participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO signal_participants (signal_id, wallet, entry_price, size, leverage)
			VALUES ($1, $2, $3, $4, $5)
		`, sig.SignalID, p.Wallet, p.EntryPrice, p.Size, p.Leverage)
		if err != nil {
			if isDuplicateKeyError(err) {
				return false, storage.ErrDuplicateKey
			}
			return false, fmt.Errorf("insert participant: %w", err)
		}
	}

	for _, tgt := range sig.Targets {
		_, err = tx.Exec(ctx, `
			INSERT INTO signal_targets (signal_id, target_index, target_pct, target_price, hit, hit_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, sig.SignalID, tgt.Index, tgt.TargetPct, tgt.TargetPrice, tgt.Hit, tgt.HitAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return false, storage.ErrDuplicateKey
			}
			return false, fmt.Errorf("insert target: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// GetByID retrieves a signal with participants and targets.
func (s *SignalStore) GetByID(ctx context.Context, signalID string) (*domain.Signal, error) {
	var sig domain.Signal
	var direction, status string

	err := s.pool.QueryRow(ctx, `
		SELECT signal_id, instrument, direction, reference_price, avg_size, stop_loss_pct, status, created_at, updated_at
		FROM signals
		WHERE signal_id = $1
	`, signalID).Scan(
		&sig.SignalID,
		&sig.Instrument,
		&direction,
		&sig.ReferencePrice,
		&sig.AvgSize,
		&sig.StopLossPct,
		&status,
		&sig.CreatedAt,
		&sig.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal by id: %w", err)
	}
	sig.Direction = domain.Direction(direction)
	sig.Status = domain.SignalStatus(status)

	if err := s.loadChildren(ctx, []*domain.Signal{&sig}); err != nil {
		return nil, err
	}

	return &sig, nil
}

// GetActive retrieves all OPEN and PARTIAL_TP signals with their targets
// and participants, ordered by created_at ASC.
func (s *SignalStore) GetActive(ctx context.Context) ([]*domain.Signal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signal_id, instrument, direction, reference_price, avg_size, stop_loss_pct, status, created_at, updated_at
		FROM signals
		WHERE status = $1 OR status = $2
		ORDER BY created_at ASC, signal_id ASC
	`, string(domain.StatusOpen), string(domain.StatusPartialTP))
	if err != nil {
		return nil, fmt.Errorf("get active signals: %w", err)
	}
	defer rows.Close()

	var signals []*domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var direction, status string

		err := rows.Scan(
			&sig.SignalID,
			&sig.Instrument,
			&direction,
			&sig.ReferencePrice,
			&sig.AvgSize,
			&sig.StopLossPct,
			&status,
			&sig.CreatedAt,
			&sig.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		sig.Direction = domain.Direction(direction)
		sig.Status = domain.SignalStatus(status)

		signals = append(signals, &sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}

	if err := s.loadChildren(ctx, signals); err != nil {
		return nil, err
	}

	return signals, nil
}

// MarkTargetHit sets the hit flag of one rung. The conditional write keeps
// the flag monotone: returns false when the rung was already hit.
func (s *SignalStore) MarkTargetHit(ctx context.Context, signalID string, index int, hitAt int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE signal_targets
		SET hit = TRUE, hit_at = $3
		WHERE signal_id = $1 AND target_index = $2 AND hit = FALSE
	`, signalID, index, hitAt)
	if err != nil {
		return false, fmt.Errorf("mark target hit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE signals SET updated_at = $2 WHERE signal_id = $1`,
		signalID, hitAt,
	)
	if err != nil {
		return true, fmt.Errorf("touch signal: %w", err)
	}

	return true, nil
}

// TransitionStatus advances the signal status with a conditional write
// restricted to the statuses the move is legal from, so re-running a sweep
// over an already-terminal signal is a no-op.
func (s *SignalStore) TransitionStatus(ctx context.Context, signalID string, to domain.SignalStatus, updatedAt int64) (bool, error) {
	froms := allowedFrom(to)
	if len(froms) == 0 {
		return false, storage.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE signals
		SET status = $2, updated_at = $3
		WHERE signal_id = $1 AND status = ANY($4)
	`, signalID, string(to), updatedAt, froms)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// allowedFrom lists the statuses a monotone move to `to` may start from.
func allowedFrom(to domain.SignalStatus) []string {
	switch to {
	case domain.StatusPartialTP:
		return []string{string(domain.StatusOpen)}
	case domain.StatusTPHit, domain.StatusSLHit, domain.StatusClosedManual:
		return []string{string(domain.StatusOpen), string(domain.StatusPartialTP)}
	}
	return nil
}

// loadChildren attaches participants and targets to the given signals.
func (s *SignalStore) loadChildren(ctx context.Context, signals []*domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	ids := make([]string, len(signals))
	byID := make(map[string]*domain.Signal, len(signals))
	for i, sig := range signals {
		ids[i] = sig.SignalID
		byID[sig.SignalID] = sig
	}

	rows, err := s.pool.Query(ctx, `
		SELECT signal_id, wallet, entry_price, size, leverage
		FROM signal_participants
		WHERE signal_id = ANY($1)
		ORDER BY signal_id ASC, wallet ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.SignalParticipant
		if err := rows.Scan(&p.SignalID, &p.Wallet, &p.EntryPrice, &p.Size, &p.Leverage); err != nil {
			return fmt.Errorf("scan participant row: %w", err)
		}
		if sig, ok := byID[p.SignalID]; ok {
			sig.Participants = append(sig.Participants, &p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate participant rows: %w", err)
	}

	tgtRows, err := s.pool.Query(ctx, `
		SELECT signal_id, target_index, target_pct, target_price, hit, hit_at
		FROM signal_targets
		WHERE signal_id = ANY($1)
		ORDER BY signal_id ASC, target_index ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("get targets: %w", err)
	}
	defer tgtRows.Close()

	for tgtRows.Next() {
		var tgt domain.SignalTarget
		if err := tgtRows.Scan(&tgt.SignalID, &tgt.Index, &tgt.TargetPct, &tgt.TargetPrice, &tgt.Hit, &tgt.HitAt); err != nil {
			return fmt.Errorf("scan target row: %w", err)
		}
		if sig, ok := byID[tgt.SignalID]; ok {
			sig.Targets = append(sig.Targets, &tgt)
		}
	}
	if err := tgtRows.Err(); err != nil {
		return fmt.Errorf("iterate target rows: %w", err)
	}

	return nil
}

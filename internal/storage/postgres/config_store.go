package postgres

import (
	"context"
	"fmt"
	"time"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// ConfigStore implements storage.ConfigStore using PostgreSQL.
// The configuration lives in a single row with id = 1.
type ConfigStore struct {
	pool *Pool
}

// NewConfigStore creates a new ConfigStore.
func NewConfigStore(pool *Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ConfigStore = (*ConfigStore)(nil)

// Get retrieves the current engine configuration.
func (s *ConfigStore) Get(ctx context.Context) (*domain.EngineConfig, error) {
	var cfg domain.EngineConfig
	var windowMs, cooldownMs, pollMs int64

	err := s.pool.QueryRow(ctx, `
		SELECT min_wallet_quorum, consensus_window_ms, signal_cooldown_ms, default_stop_loss,
		       default_targets, poll_interval_ms, min_trade_size, min_leverage,
		       instrument_allow, instrument_deny, updated_at
		FROM engine_config
		WHERE id = 1
	`).Scan(
		&cfg.MinWalletQuorum,
		&windowMs,
		&cooldownMs,
		&cfg.DefaultStopLoss,
		&cfg.DefaultTargets,
		&pollMs,
		&cfg.MinTradeSize,
		&cfg.MinLeverage,
		&cfg.InstrumentAllow,
		&cfg.InstrumentDeny,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get engine config: %w", err)
	}

	cfg.ConsensusWindow = time.Duration(windowMs) * time.Millisecond
	cfg.SignalCooldown = time.Duration(cooldownMs) * time.Millisecond
	cfg.PollInterval = time.Duration(pollMs) * time.Millisecond

	return &cfg, nil
}

// Update validates and replaces the engine configuration.
func (s *ConfigStore) Update(ctx context.Context, cfg *domain.EngineConfig) error {
	if cfg == nil {
		return storage.ErrInvalidInput
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO engine_config (
			id, min_wallet_quorum, consensus_window_ms, signal_cooldown_ms, default_stop_loss,
			default_targets, poll_interval_ms, min_trade_size, min_leverage,
			instrument_allow, instrument_deny, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			min_wallet_quorum = EXCLUDED.min_wallet_quorum,
			consensus_window_ms = EXCLUDED.consensus_window_ms,
			signal_cooldown_ms = EXCLUDED.signal_cooldown_ms,
			default_stop_loss = EXCLUDED.default_stop_loss,
			default_targets = EXCLUDED.default_targets,
			poll_interval_ms = EXCLUDED.poll_interval_ms,
			min_trade_size = EXCLUDED.min_trade_size,
			min_leverage = EXCLUDED.min_leverage,
			instrument_allow = EXCLUDED.instrument_allow,
			instrument_deny = EXCLUDED.instrument_deny,
			updated_at = EXCLUDED.updated_at
	`,
		cfg.MinWalletQuorum,
		cfg.ConsensusWindow.Milliseconds(),
		cfg.SignalCooldown.Milliseconds(),
		cfg.DefaultStopLoss,
		cfg.DefaultTargets,
		cfg.PollInterval.Milliseconds(),
		cfg.MinTradeSize,
		cfg.MinLeverage,
		cfg.InstrumentAllow,
		cfg.InstrumentDeny,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update engine config: %w", err)
	}

	return nil
}

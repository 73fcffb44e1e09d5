package memory

import (
	"context"
	"fmt"
	"sync"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// ConfigStore is an in-memory implementation of storage.ConfigStore.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg *domain.EngineConfig
}

// NewConfigStore creates a new in-memory config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

// Compile-time interface check.
var _ storage.ConfigStore = (*ConfigStore)(nil)

// Get retrieves the current engine configuration.
func (s *ConfigStore) Get(_ context.Context) (*domain.EngineConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return nil, storage.ErrNotFound
	}
	cfgCopy := *s.cfg
	cfgCopy.DefaultTargets = append([]float64(nil), s.cfg.DefaultTargets...)
	cfgCopy.InstrumentAllow = append([]string(nil), s.cfg.InstrumentAllow...)
	cfgCopy.InstrumentDeny = append([]string(nil), s.cfg.InstrumentDeny...)
	return &cfgCopy, nil
}

// Update validates and replaces the engine configuration.
func (s *ConfigStore) Update(_ context.Context, cfg *domain.EngineConfig) error {
	if cfg == nil {
		return storage.ErrInvalidInput
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfgCopy := *cfg
	cfgCopy.DefaultTargets = append([]float64(nil), cfg.DefaultTargets...)
	cfgCopy.InstrumentAllow = append([]string(nil), cfg.InstrumentAllow...)
	cfgCopy.InstrumentDeny = append([]string(nil), cfg.InstrumentDeny...)
	s.cfg = &cfgCopy
	return nil
}

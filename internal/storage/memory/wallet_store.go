package memory

import (
	"context"
	"sort"
	"sync"

	"perp-signal-engine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu      sync.RWMutex
	wallets map[string]struct{}
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		wallets: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// List returns all watched wallet addresses, sorted for determinism.
func (s *WalletStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.wallets))
	for w := range s.wallets {
		result = append(result, w)
	}
	sort.Strings(result)
	return result, nil
}

// Upsert adds a wallet to the watched set. Idempotent.
func (s *WalletStore) Upsert(_ context.Context, wallet string) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets[wallet] = struct{}{}
	return nil
}

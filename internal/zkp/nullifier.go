// Package zkp implements the shielded-pool note primitives.
package zkp

import (
	"context"
	"errors"
	"sync"

	"github.com/nyxlabs/veil/pkg/types"
)

// Nullifier errors.
var (
	ErrNullifierSpent   = errors.New("nullifier already spent")
	ErrNullifierInvalid = errors.New("invalid nullifier")
)

// NullifierSet is a client-side convenience index over nullifiers observed
// as spent, used to avoid submitting a doomed spend before it reaches the
// pool's authoritative marker check (SPEC_FULL §4.7: marker existence is
// the sole double-spend mechanism; this cache only shortcuts the common
// case locally).
type NullifierSet struct {
	mu sync.RWMutex

	cache map[types.Hash]struct{}
	store NullifierStore

	maxCacheSize int
}

// NullifierStore defines the interface for persistent nullifier storage.
type NullifierStore interface {
	HasNullifier(ctx context.Context, nullifier types.Hash) (bool, error)
	AddNullifier(ctx context.Context, nullifier types.Hash, txHash types.Hash, blockHeight uint64) error
	GetNullifierInfo(ctx context.Context, nullifier types.Hash) (*NullifierInfo, error)
}

// NullifierInfo contains information about a spent nullifier.
type NullifierInfo struct {
	Nullifier   types.Hash
	TxHash      types.Hash
	BlockHeight uint64
	SpentAt     uint64
}

// NullifierConfig holds configuration for the nullifier set.
type NullifierConfig struct {
	MaxCacheSize int
}

// DefaultNullifierConfig returns default configuration.
func DefaultNullifierConfig() *NullifierConfig {
	return &NullifierConfig{
		MaxCacheSize: 100000,
	}
}

// NewNullifierSet creates a new nullifier set.
func NewNullifierSet(store NullifierStore, cfg *NullifierConfig) *NullifierSet {
	if cfg == nil {
		cfg = DefaultNullifierConfig()
	}

	return &NullifierSet{
		cache:        make(map[types.Hash]struct{}),
		store:        store,
		maxCacheSize: cfg.MaxCacheSize,
	}
}

// IsSpent checks if a nullifier has already been spent.
func (ns *NullifierSet) IsSpent(ctx context.Context, nullifier types.Hash) (bool, error) {
	ns.mu.RLock()
	_, inCache := ns.cache[nullifier]
	ns.mu.RUnlock()

	if inCache {
		return true, nil
	}

	return ns.store.HasNullifier(ctx, nullifier)
}

// MarkSpent marks a nullifier as spent.
func (ns *NullifierSet) MarkSpent(ctx context.Context, nullifier types.Hash, txHash types.Hash, blockHeight uint64) error {
	spent, err := ns.IsSpent(ctx, nullifier)
	if err != nil {
		return err
	}
	if spent {
		return ErrNullifierSpent
	}

	if err := ns.store.AddNullifier(ctx, nullifier, txHash, blockHeight); err != nil {
		return err
	}

	ns.mu.Lock()
	ns.cache[nullifier] = struct{}{}
	if len(ns.cache) > ns.maxCacheSize {
		for k := range ns.cache {
			delete(ns.cache, k)
			break
		}
	}
	ns.mu.Unlock()

	return nil
}

// BatchCheck checks multiple nullifiers at once.
func (ns *NullifierSet) BatchCheck(ctx context.Context, nullifiers []types.Hash) ([]bool, error) {
	results := make([]bool, len(nullifiers))

	for i, nullifier := range nullifiers {
		spent, err := ns.IsSpent(ctx, nullifier)
		if err != nil {
			return nil, err
		}
		results[i] = spent
	}

	return results, nil
}

// InMemoryNullifierStore is a simple in-memory implementation for testing.
type InMemoryNullifierStore struct {
	mu         sync.RWMutex
	nullifiers map[types.Hash]*NullifierInfo
}

// NewInMemoryNullifierStore creates a new in-memory nullifier store.
func NewInMemoryNullifierStore() *InMemoryNullifierStore {
	return &InMemoryNullifierStore{
		nullifiers: make(map[types.Hash]*NullifierInfo),
	}
}

// HasNullifier checks if a nullifier exists.
func (s *InMemoryNullifierStore) HasNullifier(ctx context.Context, nullifier types.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.nullifiers[nullifier]
	return exists, nil
}

// AddNullifier adds a nullifier.
func (s *InMemoryNullifierStore) AddNullifier(ctx context.Context, nullifier types.Hash, txHash types.Hash, blockHeight uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nullifiers[nullifier]; exists {
		return ErrNullifierSpent
	}

	s.nullifiers[nullifier] = &NullifierInfo{
		Nullifier:   nullifier,
		TxHash:      txHash,
		BlockHeight: blockHeight,
	}
	return nil
}

// GetNullifierInfo returns info about a nullifier.
func (s *InMemoryNullifierStore) GetNullifierInfo(ctx context.Context, nullifier types.Hash) (*NullifierInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, exists := s.nullifiers[nullifier]
	if !exists {
		return nil, ErrNullifierInvalid
	}
	return info, nil
}

// Size returns the number of nullifiers.
func (s *InMemoryNullifierStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nullifiers)
}

package merkle

import (
	"context"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// InMemoryTreeStore is a process-local TreeStore, suitable for tests and
// for the off-chain prover-facing copy of the tree that needs the full
// leaf list to build proofs (SPEC_FULL §4.2).
type InMemoryTreeStore struct {
	mu     sync.RWMutex
	state  *State
	leaves []fr.Element
}

// NewInMemoryTreeStore returns an empty in-memory store.
func NewInMemoryTreeStore() *InMemoryTreeStore {
	return &InMemoryTreeStore{}
}

// LoadState returns the stored state, or nil if Tree has never saved one.
func (s *InMemoryTreeStore) LoadState(ctx context.Context) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

// SaveState overwrites the stored state.
func (s *InMemoryTreeStore) SaveState(ctx context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.state = &cp
	return nil
}

// AppendLeaf stores leaf at index, growing the leaf slice as needed.
func (s *InMemoryTreeStore) AppendLeaf(ctx context.Context, index uint64, leaf fr.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uint64(len(s.leaves)) <= index {
		s.leaves = append(s.leaves, Zeros[0])
	}
	s.leaves[index] = leaf
	return nil
}

// Leaves returns every leaf appended so far, in index order.
func (s *InMemoryTreeStore) Leaves(ctx context.Context) ([]fr.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fr.Element, len(s.leaves))
	copy(out, s.leaves)
	return out, nil
}

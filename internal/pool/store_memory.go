package pool

import (
	"context"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/merkle"
	"github.com/nyxlabs/veil/pkg/types"
)

// InMemoryStore is a process-local Store, suitable for tests and for a
// single-node reference deployment.
type InMemoryStore struct {
	mu      sync.Mutex
	state   *State
	markers map[types.Hash]struct{}
	leaves  []fr.Element
}

// NewInMemoryStore returns an empty in-memory pool store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{markers: make(map[types.Hash]struct{})}
}

func (s *InMemoryStore) LoadPool(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPoolLocked()
}

func (s *InMemoryStore) loadPoolLocked() (*State, error) {
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

func (s *InMemoryStore) SavePool(ctx context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savePoolLocked(state)
	return nil
}

func (s *InMemoryStore) savePoolLocked(state *State) {
	cp := *state
	s.state = &cp
}

func (s *InMemoryStore) CreateMarker(ctx context.Context, nullifier types.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createMarkerLocked(nullifier), nil
}

func (s *InMemoryStore) createMarkerLocked(nullifier types.Hash) bool {
	if _, exists := s.markers[nullifier]; exists {
		return false
	}
	s.markers[nullifier] = struct{}{}
	return true
}

func (s *InMemoryStore) AppendLeaf(ctx context.Context, index uint64, leaf fr.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLeafLocked(index, leaf)
	return nil
}

func (s *InMemoryStore) appendLeafLocked(index uint64, leaf fr.Element) {
	for uint64(len(s.leaves)) <= index {
		s.leaves = append(s.leaves, merkle.Zeros[0])
	}
	s.leaves[index] = leaf
}

// Leaves returns every leaf appended so far, used by off-chain proof
// generation against this pool's tree.
func (s *InMemoryStore) Leaves(ctx context.Context) ([]fr.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fr.Element, len(s.leaves))
	copy(out, s.leaves)
	return out, nil
}

// WithinTransaction holds s's mutex for fn's entire duration and snapshots
// state/markers/leaves beforehand, restoring the snapshot if fn returns an
// error. That gives the in-memory store the same all-or-nothing semantics
// as PostgresStore's pgx.Tx, rather than relying on the mutex alone (which
// only serializes callers, and does nothing to undo a partial write).
func (s *InMemoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var statePre *State
	if s.state != nil {
		cp := *s.state
		statePre = &cp
	}
	markersPre := make(map[types.Hash]struct{}, len(s.markers))
	for k := range s.markers {
		markersPre[k] = struct{}{}
	}
	leavesPre := make([]fr.Element, len(s.leaves))
	copy(leavesPre, s.leaves)

	tx := &inMemoryTxStore{s: s}
	if err := fn(ctx, tx); err != nil {
		s.state = statePre
		s.markers = markersPre
		s.leaves = leavesPre
		return err
	}
	return nil
}

// inMemoryTxStore is the Store handed to a WithinTransaction callback. Its
// methods assume the owning InMemoryStore's mutex is already held by the
// surrounding WithinTransaction call, so they use the lock-free *Locked
// helpers directly instead of re-locking a non-reentrant sync.Mutex.
type inMemoryTxStore struct {
	s *InMemoryStore
}

func (tx *inMemoryTxStore) LoadPool(ctx context.Context) (*State, error) {
	return tx.s.loadPoolLocked()
}

func (tx *inMemoryTxStore) SavePool(ctx context.Context, state *State) error {
	tx.s.savePoolLocked(state)
	return nil
}

func (tx *inMemoryTxStore) CreateMarker(ctx context.Context, nullifier types.Hash) (bool, error) {
	return tx.s.createMarkerLocked(nullifier), nil
}

func (tx *inMemoryTxStore) AppendLeaf(ctx context.Context, index uint64, leaf fr.Element) error {
	tx.s.appendLeafLocked(index, leaf)
	return nil
}

// WithinTransaction on a tx store just runs fn against itself: nested
// transactions aren't needed anywhere in this package, and the outer
// WithinTransaction already owns the rollback/commit semantics.
func (tx *inMemoryTxStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, tx)
}

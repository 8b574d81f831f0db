// Package merkle implements the incremental Poseidon Merkle tree that
// accumulates note commitments (SPEC_FULL §4.2): fixed depth 20, O(log n)
// append via the "filled subtrees" right-frontier technique, and membership
// proof generation/verification.
package merkle

import (
	"context"
	"errors"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/poseidon"
	"github.com/nyxlabs/veil/pkg/types"
)

// Depth is the fixed tree depth; capacity is 2^Depth leaves.
const Depth = 20

// MaxLeaves is the tree's leaf capacity, 2^20.
const MaxLeaves = uint64(1) << Depth

// Errors returned by Tree operations.
var (
	ErrTreeFull         = errors.New("merkle: tree is full")
	ErrInvalidLeafIndex = errors.New("merkle: invalid leaf index")
	ErrInvalidProofLen  = errors.New("merkle: invalid proof length")
)

// Zeros holds the precomputed zero-hash for each level: Zeros[0] = 0,
// Zeros[k] = Poseidon(Zeros[k-1], Zeros[k-1]). Shared read-only across every
// Tree instance.
var Zeros = computeZeroHashes()

func computeZeroHashes() [Depth + 1]fr.Element {
	var z [Depth + 1]fr.Element
	z[0] = fr.Element{}
	for i := 1; i <= Depth; i++ {
		z[i] = poseidon.Hash2(z[i-1], z[i-1])
	}
	return z
}

// EmptyRoot is the root of a tree with no leaves: Zeros[Depth].
func EmptyRoot() fr.Element {
	return Zeros[Depth]
}

// Proof is a Merkle membership proof: Depth siblings, Depth direction bits
// (indices[k] = (leafIndex >> k) & 1), and the leaf's index.
type Proof struct {
	Siblings  [Depth]fr.Element
	Indices   [Depth]bool
	LeafIndex uint64
}

// State is the minimal persisted tree state: the append frontier and the
// current root. Leaves are persisted separately (TreeStore.Leaves) since
// proof regeneration needs the full leaf list but the frontier does not.
type State struct {
	NextIndex      uint64
	FilledSubtrees [Depth]fr.Element
	Root           fr.Element
}

// TreeStore persists tree state and the leaf list. An on-chain deployment
// only needs State (SPEC_FULL §4.2, "on-chain state omits leaves"); the
// off-chain prover-facing copy additionally needs Leaves to build proofs.
type TreeStore interface {
	LoadState(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, state *State) error
	AppendLeaf(ctx context.Context, index uint64, leaf fr.Element) error
	Leaves(ctx context.Context) ([]fr.Element, error)
}

// Tree is an incremental Poseidon Merkle tree over a TreeStore.
type Tree struct {
	mu    sync.RWMutex
	store TreeStore
	state State
}

// New constructs a Tree backed by store, loading existing state if present
// or starting from the empty-tree state otherwise.
func New(ctx context.Context, store TreeStore) (*Tree, error) {
	t := &Tree{store: store}
	state, err := store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if state != nil {
		t.state = *state
		return t, nil
	}

	t.state = State{Root: EmptyRoot()}
	for i := 0; i < Depth; i++ {
		t.state.FilledSubtrees[i] = Zeros[i]
	}
	if err := store.SaveState(ctx, &t.state); err != nil {
		return nil, err
	}
	return t, nil
}

// Root returns the current root.
func (t *Tree) Root() fr.Element {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Root
}

// NextIndex returns the number of leaves inserted so far.
func (t *Tree) NextIndex() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.NextIndex
}

// Insert appends leaf at the current next_index, walking the right
// frontier per SPEC_FULL §4.2: at each level, if the local index is even the
// current value becomes the new filled-subtree entry and is combined with
// the level's zero hash; if odd, it combines with the stored filled-subtree
// entry. Returns the assigned leaf index.
func (t *Tree) Insert(ctx context.Context, leaf fr.Element) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.NextIndex >= MaxLeaves {
		return 0, ErrTreeFull
	}

	index := t.state.NextIndex
	current := leaf
	idx := index
	for level := 0; level < Depth; level++ {
		if idx%2 == 0 {
			t.state.FilledSubtrees[level] = current
			current = poseidon.Hash2(current, Zeros[level])
		} else {
			current = poseidon.Hash2(t.state.FilledSubtrees[level], current)
		}
		idx /= 2
	}

	t.state.Root = current
	t.state.NextIndex++

	if err := t.store.AppendLeaf(ctx, index, leaf); err != nil {
		return 0, err
	}
	if err := t.store.SaveState(ctx, &t.state); err != nil {
		return 0, err
	}
	return index, nil
}

// Proof rebuilds the tree level-by-level from the stored leaf list (padded
// with Zeros[0] to capacity) and returns the membership proof for leafIndex.
func (t *Tree) Proof(ctx context.Context, leafIndex uint64) (*Proof, error) {
	t.mu.RLock()
	nextIndex := t.state.NextIndex
	t.mu.RUnlock()

	if leafIndex >= nextIndex {
		return nil, ErrInvalidLeafIndex
	}

	leaves, err := t.store.Leaves(ctx)
	if err != nil {
		return nil, err
	}

	level := make([]fr.Element, MaxLeaves)
	for i := range level {
		if uint64(i) < uint64(len(leaves)) {
			level[i] = leaves[i]
		} else {
			level[i] = Zeros[0]
		}
	}

	var proof Proof
	proof.LeafIndex = leafIndex
	idx := leafIndex
	for d := 0; d < Depth; d++ {
		siblingIdx := idx ^ 1
		proof.Siblings[d] = level[siblingIdx]
		proof.Indices[d] = idx&1 == 1

		next := make([]fr.Element, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = poseidon.Hash2(level[2*i], level[2*i+1])
		}
		level = next
		idx /= 2
	}
	return &proof, nil
}

// Verify folds leaf upward through proof, choosing the sibling side at each
// level from proof.Indices, and compares the result to root.
func Verify(leaf fr.Element, proof *Proof, root fr.Element) bool {
	current := leaf
	for d := 0; d < Depth; d++ {
		if proof.Indices[d] {
			current = poseidon.Hash2(proof.Siblings[d], current)
		} else {
			current = poseidon.Hash2(current, proof.Siblings[d])
		}
	}
	return current.Equal(&root)
}

// ToBytes encodes a proof as leaf_index (u64 LE) || 20 siblings (LE each)
// || indices bitfield (u32 LE), matching SPEC_FULL §6's wire format.
func (p *Proof) ToBytes() []byte {
	buf := make([]byte, 8+Depth*field.Size+4)
	putUint64LE(buf[0:8], p.LeafIndex)
	for i := 0; i < Depth; i++ {
		le := field.ToBytesLE(p.Siblings[i])
		copy(buf[8+i*field.Size:], le[:])
	}
	var bits uint32
	for i := 0; i < Depth; i++ {
		if p.Indices[i] {
			bits |= 1 << uint(i)
		}
	}
	putUint32LE(buf[8+Depth*field.Size:], bits)
	return buf
}

// ProofFromBytes decodes the wire format produced by ToBytes.
func ProofFromBytes(b []byte) (*Proof, error) {
	want := 8 + Depth*field.Size + 4
	if len(b) != want {
		return nil, ErrInvalidProofLen
	}
	p := &Proof{}
	p.LeafIndex = getUint64LE(b[0:8])
	for i := 0; i < Depth; i++ {
		chunk := b[8+i*field.Size : 8+(i+1)*field.Size]
		e, err := field.FromCanonicalLE(chunk)
		if err != nil {
			return nil, err
		}
		p.Siblings[i] = e
	}
	bits := getUint32LE(b[8+Depth*field.Size:])
	for i := 0; i < Depth; i++ {
		p.Indices[i] = bits&(1<<uint(i)) != 0
	}
	return p, nil
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getUint64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}

func putUint32LE(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getUint32LE(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * uint(i))
	}
	return v
}

// LeafFromHash reinterprets a wire-level types.Hash (32-byte little-endian)
// as a field element, for callers that carry commitments in that form
// (SPEC_FULL §6).
func LeafFromHash(h types.Hash) fr.Element {
	return field.FromLEBytesModOrder(h[:])
}

// HashFromLeaf encodes a field element back to the wire-level types.Hash
// form.
func HashFromLeaf(e fr.Element) types.Hash {
	return types.Hash(field.ToBytesLE(e))
}

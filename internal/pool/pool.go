// Package pool implements the shielded-pool state machine: the pool
// account (authority, embedded Merkle tree, root history, counters, fee
// policy) and the Initialize/Shield/Transfer/Unshield instruction handlers
// (SPEC_FULL §4.7). Every instruction is atomic: either all invariants hold
// on exit or no state changes. A single mutex serializes instructions the
// way the host runtime's transactional execution does, and each
// instruction's marker/leaf/state writes additionally run inside one
// Store.WithinTransaction call, so a Store backed by a real database commits
// them together or not at all (SPEC_FULL §5).
package pool

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/circuits"
	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/merkle"
	"github.com/nyxlabs/veil/internal/poseidon"
	"github.com/nyxlabs/veil/internal/proof"
	"github.com/nyxlabs/veil/pkg/types"
)

// Fee policy constants (SPEC_FULL §12 supplemented-features relayer model).
const (
	DefaultFeeBps = 30
	MaxFeeBps     = 500

	// RootHistorySize is the number of most recent superseded roots the
	// pool keeps, beyond the current one (SPEC_FULL §4.2).
	RootHistorySize = 30

	// SignatureProofSize is the legacy/testing 96-byte proof: sig(64) || pk(32).
	SignatureProofSize = 64 + 32

	// GrothProofSize is the production 256-byte Groth16 proof.
	GrothProofSize = proof.ProofSize
)

// Errors returned by pool operations, one per distinct failure named in
// SPEC_FULL §4.7.
var (
	ErrAlreadyInitialized    = errors.New("pool: already initialized")
	ErrNotInitialized        = errors.New("pool: not initialized")
	ErrInvalidAmount         = errors.New("pool: amount must be greater than zero")
	ErrTreeFull              = errors.New("pool: tree is full")
	ErrInvalidProof          = errors.New("pool: proof verification failed")
	ErrInvalidProofLength    = errors.New("pool: proof has an unrecognized length")
	ErrUnknownRoot           = errors.New("pool: root is not current or in the recent history")
	ErrNullifierSpent        = errors.New("pool: nullifier marker already exists")
	ErrInsufficientVault     = errors.New("pool: vault balance insufficient")
	ErrInvalidFeeBps         = errors.New("pool: fee basis points exceeds the maximum")
	ErrSignatureModeDisabled = errors.New("pool: signature-mode proofs are disabled")
)

// RootHistory is a fixed-capacity circular buffer of the most recently
// superseded roots (the current root is tracked separately on State).
type RootHistory struct {
	slots [RootHistorySize]fr.Element
	next  int
	count int
}

// Push records prevRoot as the most recently superseded root, overwriting
// the oldest slot once the buffer is full.
func (h *RootHistory) Push(prevRoot fr.Element) {
	h.slots[h.next] = prevRoot
	h.next = (h.next + 1) % RootHistorySize
	if h.count < RootHistorySize {
		h.count++
	}
}

// Contains reports whether root appears anywhere in the recorded history
// (and is nonzero — the zero value never matches, matching SPEC_FULL
// §4.2's "nonzero in the history" qualifier).
func (h *RootHistory) Contains(root fr.Element) bool {
	if root.IsZero() {
		return false
	}
	for i := 0; i < h.count; i++ {
		if h.slots[i].Equal(&root) {
			return true
		}
	}
	return false
}

// Export returns the raw slot contents plus the cursor fields, for
// persistence backends (e.g. internal/storage) that store the circular
// buffer as a flat array rather than reconstructing it in place.
func (h *RootHistory) Export() (slots []fr.Element, next, count int) {
	out := make([]fr.Element, RootHistorySize)
	copy(out, h.slots[:])
	return out, h.next, h.count
}

// ImportRootHistory rebuilds a RootHistory from a previously exported slot
// array and cursor. len(slots) may be less than RootHistorySize (e.g. on
// first load from a freshly migrated schema); missing slots are left zero.
func ImportRootHistory(slots []fr.Element, next, count int) RootHistory {
	var h RootHistory
	copy(h.slots[:], slots)
	h.next = next
	h.count = count
	return h
}

// State is the persisted pool account (SPEC_FULL §3, §6).
type State struct {
	Authority          types.Address
	TreeState          merkle.State
	RootHistory        RootHistory
	NullifierCount     uint64
	FeeBps             uint16
	TotalFeesCollected uint64
	VaultBalance       uint64
	Bump               uint8
	Initialized        bool

	// SignatureModeEnabled gates the legacy 96-byte proof path. It MUST be
	// false by default outside test builds (SPEC_FULL §4.7).
	SignatureModeEnabled bool
	SignaturePublicKey   ed25519.PublicKey
}

// Store persists pool state and nullifier markers. A Postgres-backed
// implementation executes each instruction's mutations inside one SQL
// transaction; the in-process InMemoryStore holds its mutex and restores a
// snapshot if the transaction fails (SPEC_FULL §5).
type Store interface {
	LoadPool(ctx context.Context) (*State, error)
	SavePool(ctx context.Context, state *State) error
	// CreateMarker atomically creates a nullifier marker, returning false
	// if one already existed for this nullifier.
	CreateMarker(ctx context.Context, nullifier types.Hash) (bool, error)
	AppendLeaf(ctx context.Context, index uint64, leaf fr.Element) error

	// WithinTransaction runs fn against a Store whose SavePool/CreateMarker/
	// AppendLeaf calls commit together atomically: if fn returns an error,
	// none of its writes are visible afterward. Every instruction handler
	// below performs its mutations through the tx passed to fn rather than
	// through the outer Store directly, so a crash partway through never
	// leaves an orphaned nullifier marker or a leaf with no corresponding
	// state update (SPEC_FULL §4.7, §5).
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Pool is the in-process instruction processor over a Store, guarded by a
// single mutex that serializes instructions the way the host runtime's
// transactional execution does (SPEC_FULL §5).
type Pool struct {
	mu    sync.Mutex
	store Store
	vk    proof.VerifyingKey
}

// New constructs a Pool. vk may be nil; a Pool without a verifying key
// rejects every 256-byte proof with ErrInvalidProof and accepts only
// signature-mode proofs, when the pool state enables them.
func New(store Store, vk proof.VerifyingKey) *Pool {
	return &Pool{store: store, vk: vk}
}

// Initialize creates the pool account with an empty tree and zeroed
// counters. Fails if the pool already exists.
func (p *Pool) Initialize(ctx context.Context, authority types.Address, bump uint8, feeBps uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if feeBps > MaxFeeBps {
		return ErrInvalidFeeBps
	}

	existing, err := p.store.LoadPool(ctx)
	if err != nil {
		return err
	}
	if existing != nil && existing.Initialized {
		return ErrAlreadyInitialized
	}

	state := &State{
		Authority: authority,
		Bump:      bump,
		FeeBps:    feeBps,
		TreeState: merkle.State{
			Root: merkle.EmptyRoot(),
		},
		Initialized: true,
	}
	for i := 0; i < merkle.Depth; i++ {
		state.TreeState.FilledSubtrees[i] = merkle.Zeros[i]
	}

	return p.store.SavePool(ctx, state)
}

// Shield moves amount from the depositor into the vault and appends
// commitment to the tree.
func (p *Pool) Shield(ctx context.Context, commitment fr.Element, amount uint64) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.loadInitialized(ctx)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	var index uint64
	err = p.store.WithinTransaction(ctx, func(ctx context.Context, tx Store) error {
		var err error
		index, err = insertLeaf(ctx, tx, state, commitment)
		if err != nil {
			return err
		}
		state.VaultBalance += amount
		return tx.SavePool(ctx, state)
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// Transfer verifies a spend proof bound to root — which must be the
// pool's current root or appear in its recent history — creates the
// nullifier marker, and appends the new output commitment.
func (p *Pool) Transfer(ctx context.Context, root, nullifier, newCommitment fr.Element, proofBytes []byte) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.loadInitialized(ctx)
	if err != nil {
		return 0, err
	}

	if !rootAccepted(state, root) {
		return 0, ErrUnknownRoot
	}
	if err := p.verifySpendProof(state, proofBytes, root, nullifier, newCommitment); err != nil {
		return 0, err
	}

	var index uint64
	err = p.store.WithinTransaction(ctx, func(ctx context.Context, tx Store) error {
		created, err := createMarker(ctx, tx, nullifier)
		if err != nil {
			return err
		}
		if !created {
			return ErrNullifierSpent
		}

		index, err = insertLeaf(ctx, tx, state, newCommitment)
		if err != nil {
			return err
		}
		state.NullifierCount++

		return tx.SavePool(ctx, state)
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// Unshield verifies a spend proof, creates the nullifier marker, debits
// amount from the vault, records the pool's fee, and returns the payout
// (amount minus fee). It does not itself credit recipient; recipient is not
// recorded in pool state. The circuit's NewCommitment public input is bound to the zero
// element for a pure unshield with no change output (SPEC_FULL §4.5 models
// a single-output self-transfer; an unshield that also produces a change
// note is a Transfer-then-Unshield pair at the client layer).
func (p *Pool) Unshield(ctx context.Context, root, nullifier fr.Element, recipient types.Address, amount uint64, proofBytes []byte) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.loadInitialized(ctx)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if state.VaultBalance < amount {
		return 0, ErrInsufficientVault
	}
	if !rootAccepted(state, root) {
		return 0, ErrUnknownRoot
	}

	if err := p.verifySpendProof(state, proofBytes, root, nullifier, fr.Element{}); err != nil {
		return 0, err
	}

	var fee uint64
	err = p.store.WithinTransaction(ctx, func(ctx context.Context, tx Store) error {
		created, err := createMarker(ctx, tx, nullifier)
		if err != nil {
			return err
		}
		if !created {
			return ErrNullifierSpent
		}

		fee = amount * uint64(state.FeeBps) / 10000
		state.VaultBalance -= amount
		state.TotalFeesCollected += fee
		state.NullifierCount++

		return tx.SavePool(ctx, state)
	})
	if err != nil {
		return 0, err
	}
	_ = recipient // routing the payout to recipient is the caller's token/SOL-transfer concern
	return amount - fee, nil
}

func (p *Pool) loadInitialized(ctx context.Context) (*State, error) {
	state, err := p.store.LoadPool(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil || !state.Initialized {
		return nil, ErrNotInitialized
	}
	return state, nil
}

// insertLeaf runs the filled-subtree append algorithm against state's tree
// fields, pushes the prior root into history, persists the new leaf through
// store, and updates state.TreeState.Root in place. store is normally the
// tx passed into a Store.WithinTransaction callback, so the leaf write
// commits atomically with the marker/state writes around it.
func insertLeaf(ctx context.Context, store Store, state *State, leaf fr.Element) (uint64, error) {
	if state.TreeState.NextIndex >= merkle.MaxLeaves {
		return 0, ErrTreeFull
	}

	index := state.TreeState.NextIndex
	current := leaf
	idx := index
	for level := 0; level < merkle.Depth; level++ {
		if idx%2 == 0 {
			state.TreeState.FilledSubtrees[level] = current
			current = poseidon.Hash2(current, merkle.Zeros[level])
		} else {
			current = poseidon.Hash2(state.TreeState.FilledSubtrees[level], current)
		}
		idx /= 2
	}

	prevRoot := state.TreeState.Root
	state.RootHistory.Push(prevRoot)
	state.TreeState.NextIndex++
	state.TreeState.Root = current

	if err := store.AppendLeaf(ctx, index, leaf); err != nil {
		return 0, err
	}
	return index, nil
}

func createMarker(ctx context.Context, store Store, nullifier fr.Element) (bool, error) {
	nfHash := types.Hash(field.ToBytesLE(nullifier))
	return store.CreateMarker(ctx, nfHash)
}

// rootAccepted reports whether root equals the pool's current root or
// appears in its recent history (SPEC_FULL §4.2, §4.7). Transfer and
// Unshield both check the full window, correcting a narrower
// current-root-only check present in an earlier design.
func rootAccepted(state *State, root fr.Element) bool {
	if state.TreeState.Root.Equal(&root) {
		return true
	}
	return state.RootHistory.Contains(root)
}

func (p *Pool) verifySpendProof(state *State, proofBytes []byte, root, nullifier, newCommitment fr.Element) error {
	switch len(proofBytes) {
	case SignatureProofSize:
		return p.verifySignatureMode(state, proofBytes, root)
	case GrothProofSize:
		return p.verifyGroth16Spend(proofBytes, root, nullifier, newCommitment)
	default:
		return ErrInvalidProofLength
	}
}

func (p *Pool) verifySignatureMode(state *State, proofBytes []byte, root fr.Element) error {
	if !state.SignatureModeEnabled {
		return ErrSignatureModeDisabled
	}
	sig := proofBytes[:64]
	pk := ed25519.PublicKey(proofBytes[64:96])
	if len(state.SignaturePublicKey) == ed25519.PublicKeySize && !pk.Equal(state.SignaturePublicKey) {
		return ErrInvalidProof
	}
	rootBytes := field.ToBytesLE(root)
	if !ed25519.Verify(pk, rootBytes[:], sig) {
		return ErrInvalidProof
	}
	return nil
}

func (p *Pool) verifyGroth16Spend(proofBytes []byte, root, nullifier, newCommitment fr.Element) error {
	if p.vk == nil {
		return fmt.Errorf("%w: no verifying key configured", ErrInvalidProof)
	}

	publicInputs := [circuits.NumPublicInputs]*big.Int{
		root.BigInt(new(big.Int)),
		nullifier.BigInt(new(big.Int)),
		newCommitment.BigInt(new(big.Int)),
	}
	ok, err := proof.Verify(proofBytes, publicInputs, p.vk)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidProof
	}
	return nil
}

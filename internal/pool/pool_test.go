package pool

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/merkle"
	"github.com/nyxlabs/veil/pkg/types"
)

func newTestPool(t *testing.T) (*Pool, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	p := New(store, nil)
	if err := p.Initialize(context.Background(), types.Address{1}, 255, DefaultFeeBps); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p, store
}

func enableSignatureMode(t *testing.T, store *InMemoryStore, pub ed25519.PublicKey) {
	t.Helper()
	state, err := store.LoadPool(context.Background())
	if err != nil {
		t.Fatalf("LoadPool: %v", err)
	}
	state.SignatureModeEnabled = true
	state.SignaturePublicKey = pub
	if err := store.SavePool(context.Background(), state); err != nil {
		t.Fatalf("SavePool: %v", err)
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	p, _ := newTestPool(t)
	err := p.Initialize(context.Background(), types.Address{1}, 255, DefaultFeeBps)
	if err != ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestShieldRejectsZeroAmount(t *testing.T) {
	p, _ := newTestPool(t)
	commitment := field.FromUint64(1)
	if _, err := p.Shield(context.Background(), commitment, 0); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestShieldAppendsLeafAndAdvancesRoot(t *testing.T) {
	p, store := newTestPool(t)

	before, _ := store.LoadPool(context.Background())
	rootBefore := before.TreeState.Root

	commitment := field.FromUint64(42)
	index, err := p.Shield(context.Background(), commitment, 100)
	if err != nil {
		t.Fatalf("Shield: %v", err)
	}
	if index != 0 {
		t.Fatalf("expected first leaf at index 0, got %d", index)
	}

	after, _ := store.LoadPool(context.Background())
	if after.TreeState.Root.Equal(&rootBefore) {
		t.Fatal("root did not change after Shield")
	}
	if after.VaultBalance != 100 {
		t.Fatalf("expected vault balance 100, got %d", after.VaultBalance)
	}
}

func TestTransferWithSignatureModeAndRootHistory(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p, store := newTestPool(t)
	enableSignatureMode(t, store, pub)

	state, _ := store.LoadPool(context.Background())
	oldRoot := state.TreeState.Root

	// Shield several times to push oldRoot out of "current" but keep it
	// inside the 30-slot history window.
	for i := 0; i < 5; i++ {
		if _, err := p.Shield(context.Background(), field.FromUint64(uint64(i+1)), 10); err != nil {
			t.Fatalf("Shield %d: %v", i, err)
		}
	}

	rootBytes := field.ToBytesLE(oldRoot)
	sig := ed25519.Sign(priv, rootBytes[:])
	proofBytes := append(append([]byte{}, sig...), pub...)

	nullifier := field.FromUint64(999)
	newCommitment := field.FromUint64(1000)

	index, err := p.Transfer(context.Background(), oldRoot, nullifier, newCommitment, proofBytes)
	if err != nil {
		t.Fatalf("Transfer against a historic root failed: %v", err)
	}
	if index != 5 {
		t.Fatalf("expected new leaf at index 5, got %d", index)
	}
}

func TestTransferRejectsUnknownRoot(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	p, store := newTestPool(t)
	enableSignatureMode(t, store, pub)

	unknownRoot := field.FromUint64(123456)
	rootBytes := field.ToBytesLE(unknownRoot)
	sig := ed25519.Sign(priv, rootBytes[:])
	proofBytes := append(append([]byte{}, sig...), pub...)

	_, err := p.Transfer(context.Background(), unknownRoot, field.FromUint64(1), field.FromUint64(2), proofBytes)
	if err != ErrUnknownRoot {
		t.Fatalf("expected ErrUnknownRoot, got %v", err)
	}
}

func TestTransferRejectsDoubleSpend(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	p, store := newTestPool(t)
	enableSignatureMode(t, store, pub)

	state, _ := store.LoadPool(context.Background())
	root := state.TreeState.Root
	rootBytes := field.ToBytesLE(root)
	sig := ed25519.Sign(priv, rootBytes[:])
	proofBytes := append(append([]byte{}, sig...), pub...)

	nullifier := field.FromUint64(7)
	if _, err := p.Transfer(context.Background(), root, nullifier, field.FromUint64(8), proofBytes); err != nil {
		t.Fatalf("first Transfer: %v", err)
	}

	state2, _ := store.LoadPool(context.Background())
	root2 := state2.TreeState.Root
	rootBytes2 := field.ToBytesLE(root2)
	sig2 := ed25519.Sign(priv, rootBytes2[:])
	proofBytes2 := append(append([]byte{}, sig2...), pub...)

	if _, err := p.Transfer(context.Background(), root2, nullifier, field.FromUint64(9), proofBytes2); err != ErrNullifierSpent {
		t.Fatalf("expected ErrNullifierSpent, got %v", err)
	}
}

func TestSignatureModeDisabledByDefault(t *testing.T) {
	p, _ := newTestPool(t)

	proofBytes := make([]byte, SignatureProofSize)
	_, err := p.Transfer(context.Background(), merkle.EmptyRoot(), field.FromUint64(1), field.FromUint64(2), proofBytes)
	if err != ErrSignatureModeDisabled {
		t.Fatalf("expected ErrSignatureModeDisabled, got %v", err)
	}
}

func TestUnshieldRejectsInsufficientVault(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	p, store := newTestPool(t)
	enableSignatureMode(t, store, pub)

	state, _ := store.LoadPool(context.Background())
	root := state.TreeState.Root
	rootBytes := field.ToBytesLE(root)
	sig := ed25519.Sign(priv, rootBytes[:])
	proofBytes := append(append([]byte{}, sig...), pub...)

	_, err := p.Unshield(context.Background(), root, field.FromUint64(5), types.Address{2}, 50, proofBytes)
	if err != ErrInsufficientVault {
		t.Fatalf("expected ErrInsufficientVault, got %v", err)
	}
}

func TestUnshieldDeductsFee(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	p, store := newTestPool(t)
	enableSignatureMode(t, store, pub)

	if _, err := p.Shield(context.Background(), field.FromUint64(1), 1000); err != nil {
		t.Fatalf("Shield: %v", err)
	}

	state, _ := store.LoadPool(context.Background())
	root := state.TreeState.Root
	rootBytes := field.ToBytesLE(root)
	sig := ed25519.Sign(priv, rootBytes[:])
	proofBytes := append(append([]byte{}, sig...), pub...)

	payout, err := p.Unshield(context.Background(), root, field.FromUint64(2), types.Address{2}, 1000, proofBytes)
	if err != nil {
		t.Fatalf("Unshield: %v", err)
	}
	wantFee := uint64(1000) * DefaultFeeBps / 10000
	if payout != 1000-wantFee {
		t.Fatalf("expected payout %d, got %d", 1000-wantFee, payout)
	}
}

// sanity check that the root-history invariant (SPEC_FULL §4.2) stays
// bounded to RootHistorySize entries.
func TestRootHistoryEvictsOldestAfterCapacity(t *testing.T) {
	var h RootHistory
	var last fr.Element
	for i := 0; i < RootHistorySize+5; i++ {
		e := field.FromUint64(uint64(i))
		h.Push(e)
		last = e
	}
	if !h.Contains(last) {
		t.Fatal("most recently pushed root should still be present")
	}
	evicted := field.FromUint64(0)
	if h.Contains(evicted) {
		t.Fatal("oldest root should have been evicted")
	}
}

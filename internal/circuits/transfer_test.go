package circuits

import (
	"context"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/merkle"
	"github.com/nyxlabs/veil/internal/poseidon"
)

func bi(e fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

// buildWitness derives a full consistent witness for one note (secret,
// value, blinding, asset, index) inserted into a fresh in-memory tree, and
// returns that assignment with its public inputs filled in.
func buildWitness(t *testing.T, secretWord uint64, value, asset uint64) (*TransferCircuit, error) {
	t.Helper()

	store := newTestTreeStore()
	tree, err := merkle.New(context.Background(), store)
	if err != nil {
		t.Fatalf("merkle.New: %v", err)
	}

	secret := field.FromUint64(secretWord)
	sk := poseidon.Hash2(secret, field.DomainTag("NYX_SPENDING_KEY"))

	blindingIn := field.FromUint64(111)
	blindingOut := field.FromUint64(222)

	commitmentIn := poseidon.Hash2(
		poseidon.Hash2(sk, field.FromUint64(value)),
		poseidon.Hash2(blindingIn, field.FromUint64(asset)),
	)

	index, err := tree.Insert(context.Background(), commitmentIn)
	if err != nil {
		t.Fatalf("tree.Insert: %v", err)
	}

	proof, err := tree.Proof(context.Background(), index)
	if err != nil {
		t.Fatalf("tree.Proof: %v", err)
	}

	nf := poseidon.Hash2(sk, poseidon.Hash2(field.FromUint64(index), field.DomainTag("NYX_NULLIFIER")))
	commitmentNew := poseidon.Hash2(
		poseidon.Hash2(sk, field.FromUint64(value)),
		poseidon.Hash2(blindingOut, field.FromUint64(asset)),
	)

	var gadget MerklePathGadget
	for i := 0; i < merkle.Depth; i++ {
		gadget.Siblings[i] = bi(proof.Siblings[i])
		if proof.Indices[i] {
			gadget.Indices[i] = 1
		} else {
			gadget.Indices[i] = 0
		}
	}

	witness := &TransferCircuit{
		MerkleRoot:    bi(tree.Root()),
		Nullifier:     bi(nf),
		NewCommitment: bi(commitmentNew),
		Secret:        bi(secret),
		Value:         value,
		BlindingIn:    bi(blindingIn),
		Asset:         asset,
		LeafIndex:     index,
		Path:          gadget,
		BlindingOut:   bi(blindingOut),
	}
	return witness, nil
}

func TestTransferCircuitValidWitnessSucceeds(t *testing.T) {
	witness, err := buildWitness(t, 42, 100, 1)
	if err != nil {
		t.Fatalf("buildWitness: %v", err)
	}

	assert := test.NewAssert(t)
	assert.ProverSucceeded(NewTransferCircuit(), witness, test.WithCurves(ecc.BN254))
}

func TestTransferCircuitWrongNullifierFails(t *testing.T) {
	witness, err := buildWitness(t, 42, 100, 1)
	if err != nil {
		t.Fatalf("buildWitness: %v", err)
	}
	witness.Nullifier = big.NewInt(123456789)

	assert := test.NewAssert(t)
	assert.ProverFailed(NewTransferCircuit(), witness, test.WithCurves(ecc.BN254))
}

func TestTransferCircuitWrongMerkleRootFails(t *testing.T) {
	witness, err := buildWitness(t, 42, 100, 1)
	if err != nil {
		t.Fatalf("buildWitness: %v", err)
	}
	witness.MerkleRoot = big.NewInt(987654321)

	assert := test.NewAssert(t)
	assert.ProverFailed(NewTransferCircuit(), witness, test.WithCurves(ecc.BN254))
}

func newTestTreeStore() *merkle.InMemoryTreeStore {
	return merkle.NewInMemoryTreeStore()
}

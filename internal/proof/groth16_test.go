package proof

import (
	"context"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/circuits"
	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/merkle"
	"github.com/nyxlabs/veil/internal/poseidon"
)

func bi(e fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

func TestSetupProveVerifyRoundTrip(t *testing.T) {
	pk, vk, err := Setup()
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	ccs, err := CompileCircuit()
	if err != nil {
		t.Fatalf("CompileCircuit: %v", err)
	}

	store := merkle.NewInMemoryTreeStore()
	tree, err := merkle.New(context.Background(), store)
	if err != nil {
		t.Fatalf("merkle.New: %v", err)
	}

	secret := field.FromUint64(77)
	sk := poseidon.Hash2(secret, field.DomainTag("NYX_SPENDING_KEY"))
	blindingIn := field.FromUint64(1)
	blindingOut := field.FromUint64(2)
	value, asset := uint64(50), uint64(0)

	commitmentIn := poseidon.Hash2(
		poseidon.Hash2(sk, field.FromUint64(value)),
		poseidon.Hash2(blindingIn, field.FromUint64(asset)),
	)
	index, err := tree.Insert(context.Background(), commitmentIn)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	merkleProof, err := tree.Proof(context.Background(), index)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}

	nf := poseidon.Hash2(sk, poseidon.Hash2(field.FromUint64(index), field.DomainTag("NYX_NULLIFIER")))
	commitmentNew := poseidon.Hash2(
		poseidon.Hash2(sk, field.FromUint64(value)),
		poseidon.Hash2(blindingOut, field.FromUint64(asset)),
	)

	var gadget circuits.MerklePathGadget
	for i := 0; i < merkle.Depth; i++ {
		gadget.Siblings[i] = bi(merkleProof.Siblings[i])
		if merkleProof.Indices[i] {
			gadget.Indices[i] = 1
		} else {
			gadget.Indices[i] = 0
		}
	}

	assignment := &circuits.TransferCircuit{
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

	proofBytes, err := Prove(ccs, pk, assignment)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(proofBytes) != ProofSize {
		t.Fatalf("expected a %d-byte proof, got %d", ProofSize, len(proofBytes))
	}

	publicInputs := [circuits.NumPublicInputs]*big.Int{bi(tree.Root()), bi(nf), bi(commitmentNew)}
	ok, err := Verify(proofBytes, publicInputs, vk)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("Verify rejected a proof generated from a consistent witness")
	}

	wrongInputs := [circuits.NumPublicInputs]*big.Int{big.NewInt(1), bi(nf), bi(commitmentNew)}
	ok, err = Verify(proofBytes, wrongInputs, vk)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("Verify accepted a proof against the wrong merkle root")
	}
}

func TestEndiannessBridgeIsInvolution(t *testing.T) {
	var be [32]byte
	for i := range be {
		be[i] = byte(i)
	}
	le := ToLittleEndianCoordinate(be)
	back := ToBigEndianCoordinate(le)
	if back != be {
		t.Fatal("endianness bridge is not its own inverse")
	}
}

func TestDeserializeRejectsWrongLength(t *testing.T) {
	if _, err := Deserialize(make([]byte, 10)); err != ErrInvalidProofLength {
		t.Fatalf("expected ErrInvalidProofLength, got %v", err)
	}
}

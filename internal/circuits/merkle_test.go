package circuits

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/merkle"
	"github.com/nyxlabs/veil/internal/poseidon"
)

type merkleCircuit struct {
	Leaf frontend.Variable
	Path MerklePathGadget
	Root frontend.Variable `gnark:",public"`
}

func (c *merkleCircuit) Define(api frontend.API) error {
	VerifyMerklePath(api, c.Leaf, c.Path, c.Root)
	return nil
}

func TestMerklePathAgainstNativeTree(t *testing.T) {
	leaf := field.FromUint64(7)

	proof := &merkle.Proof{LeafIndex: 3}
	for i := 0; i < merkle.Depth; i++ {
		proof.Siblings[i] = merkle.Zeros[i]
		proof.Indices[i] = (3>>uint(i))&1 == 1
	}
	root := merkle.EmptyRoot()

	// Fold the leaf manually with the same rule merkle.Verify uses, so the
	// expected root matches a leaf actually inserted at index 3 against an
	// otherwise-empty tree.
	current := leaf
	for i := 0; i < merkle.Depth; i++ {
		if proof.Indices[i] {
			current = poseidon.Hash2(proof.Siblings[i], current)
		} else {
			current = poseidon.Hash2(current, proof.Siblings[i])
		}
	}
	root = current

	if !merkle.Verify(leaf, proof, root) {
		t.Fatal("native Verify rejected the constructed proof")
	}

	var gadget MerklePathGadget
	for i := 0; i < merkle.Depth; i++ {
		gadget.Siblings[i] = proof.Siblings[i].BigInt(new(big.Int))
		if proof.Indices[i] {
			gadget.Indices[i] = 1
		} else {
			gadget.Indices[i] = 0
		}
	}

	assert := test.NewAssert(t)
	assert.ProverSucceeded(&merkleCircuit{Path: zeroGadget()}, &merkleCircuit{
		Leaf: leaf.BigInt(new(big.Int)),
		Path: gadget,
		Root: root.BigInt(new(big.Int)),
	}, test.WithCurves(ecc.BN254))
}

func zeroGadget() MerklePathGadget {
	var g MerklePathGadget
	for i := 0; i < merkle.Depth; i++ {
		g.Siblings[i] = 0
		g.Indices[i] = 0
	}
	return g
}

package circuits

import (
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/merkle"
)

// NumPublicInputs is the fixed count and order of the transfer circuit's
// public inputs: [merkle_root, nullifier, new_commitment] (SPEC_FULL §4.4,
// §4.5). Any alternate circuit implementation must preserve this order and
// count.
const NumPublicInputs = 3

// domain tags mapped into the scalar field once at package init, matching
// the native derivation in internal/zkp (SPEC_FULL §6). Folded as circuit
// constants, the same way Poseidon's round constants are (see
// internal/circuits/poseidon.go).
var (
	domainSpendingKeyFr = domainConstant("NYX_SPENDING_KEY")
	domainNullifierFr   = domainConstant("NYX_NULLIFIER")
)

func domainConstant(tag string) *big.Int {
	e := field.DomainTag(tag)
	return e.BigInt(new(big.Int))
}

// TransferCircuit proves ownership and spendability of a note committed at
// some leaf in the tree, and binds a fresh output commitment under the same
// spending key, value, and asset with only the blinding refreshed —
// modeling a self-transfer / rerandomization rather than a change of
// ownership or an amount split (SPEC_FULL §4.5).
type TransferCircuit struct {
	// Public inputs, in this exact order.
	MerkleRoot    frontend.Variable `gnark:",public"`
	Nullifier     frontend.Variable `gnark:",public"`
	NewCommitment frontend.Variable `gnark:",public"`

	// Witness.
	Secret        frontend.Variable
	Value         frontend.Variable
	BlindingIn    frontend.Variable
	Asset         frontend.Variable
	LeafIndex     frontend.Variable
	Path          MerklePathGadget
	BlindingOut   frontend.Variable
}

// Define implements the five constraint blocks of SPEC_FULL §4.5.
func (c *TransferCircuit) Define(api frontend.API) error {
	// 1. sk = Poseidon(secret, D_sk).
	sk := PoseidonHash2(api, c.Secret, domainSpendingKeyFr)

	// 2. C_in = Poseidon(Poseidon(sk, v), Poseidon(r_in, a)).
	inner1 := PoseidonHash2(api, sk, c.Value)
	inner2 := PoseidonHash2(api, c.BlindingIn, c.Asset)
	commitmentIn := PoseidonHash2(api, inner1, inner2)

	// 3. MerklePath(C_in, path, indices) ≡ root.
	VerifyMerklePath(api, commitmentIn, c.Path, c.MerkleRoot)

	// 4. nf ≡ Poseidon(sk, Poseidon(index, D_nf)).
	nfInner := PoseidonHash2(api, c.LeafIndex, domainNullifierFr)
	nf := PoseidonHash2(api, sk, nfInner)
	api.AssertIsEqual(nf, c.Nullifier)

	// 5. C_new ≡ Poseidon(Poseidon(sk, v), Poseidon(r_out, a)).
	outer1 := PoseidonHash2(api, sk, c.Value)
	outer2 := PoseidonHash2(api, c.BlindingOut, c.Asset)
	commitmentNew := PoseidonHash2(api, outer1, outer2)
	api.AssertIsEqual(commitmentNew, c.NewCommitment)

	return nil
}

// newMerklePathGadget builds a zero-valued gadget of the fixed depth, used
// when assembling an empty circuit shape for compilation/setup.
func newMerklePathGadget() MerklePathGadget {
	var g MerklePathGadget
	for i := 0; i < merkle.Depth; i++ {
		g.Siblings[i] = 0
		g.Indices[i] = 0
	}
	return g
}

// NewTransferCircuit returns a zero-valued circuit of the correct shape,
// suitable for frontend.Compile and Groth16 setup.
func NewTransferCircuit() *TransferCircuit {
	return &TransferCircuit{Path: newMerklePathGadget()}
}

package circuits

import (
	"github.com/consensys/gnark/frontend"

	"github.com/nyxlabs/veil/internal/merkle"
)

// MerklePathGadget witnesses a Merkle authentication path: Depth sibling
// variables and Depth boolean direction indicators. It mirrors
// merkle.Proof's shape exactly (SPEC_FULL §4.4).
type MerklePathGadget struct {
	Siblings [merkle.Depth]frontend.Variable
	Indices  [merkle.Depth]frontend.Variable
}

// ComputeRoot folds leaf upward through the path: at each level, select
// (left, right) = (cur, sib) if the indicator is 0, else (sib, cur), then
// hash the pair. Returns the final folded value (the implied root).
func ComputeRoot(api frontend.API, leaf frontend.Variable, path MerklePathGadget) frontend.Variable {
	current := leaf
	for level := 0; level < merkle.Depth; level++ {
		api.AssertIsBoolean(path.Indices[level])

		sib := path.Siblings[level]
		isRight := path.Indices[level]

		left := api.Select(isRight, sib, current)
		right := api.Select(isRight, current, sib)

		current = PoseidonHash2(api, left, right)
	}
	return current
}

// VerifyMerklePath enforces that folding leaf through path yields root.
func VerifyMerklePath(api frontend.API, leaf frontend.Variable, path MerklePathGadget, root frontend.Variable) {
	computed := ComputeRoot(api, leaf, path)
	api.AssertIsEqual(computed, root)
}

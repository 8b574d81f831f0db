// Package circuits implements the gnark R1CS gadgets and the transfer
// circuit for the shielded pool: an in-circuit Poseidon permutation and
// Merkle-path verifier that compute exactly the same functions as their
// native counterparts in internal/poseidon and internal/merkle
// (SPEC_FULL §4.4).
package circuits

import (
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/nyxlabs/veil/internal/poseidon"
)

// roundConstant and mdsEntry return the big.Int backing a given round
// constant / MDS matrix entry. gnark folds a *big.Int operand into the
// linear combination at compile time rather than allocating a new wire, so
// these are true circuit constants, matching the native table exactly.
func roundConstant(idx int) *big.Int {
	return poseidon.RoundConstants[idx].BigInt(new(big.Int))
}

func mdsEntry(i, j int) *big.Int {
	return poseidon.MDSMatrix[i][j].BigInt(new(big.Int))
}

// sboxGadget computes x^5 via two squarings and one multiplication, mirroring
// the native sbox function.
func sboxGadget(api frontend.API, x frontend.Variable) frontend.Variable {
	x2 := api.Mul(x, x)
	x4 := api.Mul(x2, x2)
	return api.Mul(x4, x)
}

func addRoundConstantsGadget(api frontend.API, state *[poseidon.Width]frontend.Variable, round int) {
	base := round * poseidon.Width
	for i := 0; i < poseidon.Width; i++ {
		state[i] = api.Add(state[i], roundConstant(base+i))
	}
}

func mdsMultiplyGadget(api frontend.API, state *[poseidon.Width]frontend.Variable) {
	var next [poseidon.Width]frontend.Variable
	for i := 0; i < poseidon.Width; i++ {
		acc := frontend.Variable(0)
		for j := 0; j < poseidon.Width; j++ {
			acc = api.Add(acc, api.Mul(mdsEntry(i, j), state[j]))
		}
		next[i] = acc
	}
	*state = next
}

func fullRoundGadget(api frontend.API, state *[poseidon.Width]frontend.Variable, round int) {
	addRoundConstantsGadget(api, state, round)
	for i := 0; i < poseidon.Width; i++ {
		state[i] = sboxGadget(api, state[i])
	}
	mdsMultiplyGadget(api, state)
}

func partialRoundGadget(api frontend.API, state *[poseidon.Width]frontend.Variable, round int) {
	addRoundConstantsGadget(api, state, round)
	state[0] = sboxGadget(api, state[0])
	mdsMultiplyGadget(api, state)
}

func permuteGadget(api frontend.API, state *[poseidon.Width]frontend.Variable) {
	round := 0
	for r := 0; r < poseidon.FullRounds/2; r++ {
		fullRoundGadget(api, state, round)
		round++
	}
	for r := 0; r < poseidon.PartialRounds; r++ {
		partialRoundGadget(api, state, round)
		round++
	}
	for r := 0; r < poseidon.FullRounds/2; r++ {
		fullRoundGadget(api, state, round)
		round++
	}
}

// PoseidonHash2 computes Poseidon(a, b) in-circuit: initial state
// [0, a, b], permute, return state[0].
func PoseidonHash2(api frontend.API, a, b frontend.Variable) frontend.Variable {
	state := [poseidon.Width]frontend.Variable{0, a, b}
	permuteGadget(api, &state)
	return state[0]
}

// PoseidonHash absorbs a variable-length slice of witness variables using
// the same rate-2 sponge construction as the native Hash function. Panics
// on empty input: circuit shape (the number of inputs) is fixed at compile
// time, so an empty call site is a construction bug, not a runtime
// condition to report as a typed error.
func PoseidonHash(api frontend.API, inputs []frontend.Variable) frontend.Variable {
	if len(inputs) == 0 {
		panic("circuits: PoseidonHash requires at least one input")
	}
	if len(inputs) <= poseidon.Rate {
		a := inputs[0]
		b := frontend.Variable(0)
		if len(inputs) == 2 {
			b = inputs[1]
		}
		return PoseidonHash2(api, a, b)
	}

	state := [poseidon.Width]frontend.Variable{0, 0, 0}
	for offset := 0; offset < len(inputs); offset += poseidon.Rate {
		end := offset + poseidon.Rate
		if end > len(inputs) {
			end = len(inputs)
		}
		chunk := inputs[offset:end]
		for i, v := range chunk {
			state[1+i] = api.Add(state[1+i], v)
		}
		permuteGadget(api, &state)
	}
	return state[0]
}

// Package poseidon implements the native (non-circuit) Poseidon permutation
// over the BN254 scalar field, matching internal/circuits' in-circuit
// gadget bit-for-bit (SPEC_FULL §4.1, P1).
package poseidon

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Errors returned by Hash and its variants.
var (
	ErrEmptyInput   = errors.New("poseidon: empty input")
	ErrInvalidLength = errors.New("poseidon: invalid input length")
)

// permute runs the full Poseidon permutation in place over a Width-element
// state: four full rounds, fifty-seven partial rounds, four full rounds.
func permute(state *[Width]fr.Element) {
	round := 0
	for r := 0; r < FullRounds/2; r++ {
		fullRound(state, round)
		round++
	}
	for r := 0; r < PartialRounds; r++ {
		partialRound(state, round)
		round++
	}
	for r := 0; r < FullRounds/2; r++ {
		fullRound(state, round)
		round++
	}
}

func fullRound(state *[Width]fr.Element, round int) {
	addRoundConstants(state, round, Width)
	for i := 0; i < Width; i++ {
		state[i] = sbox(state[i])
	}
	mdsMultiply(state)
}

func partialRound(state *[Width]fr.Element, round int) {
	addRoundConstants(state, round, Width)
	state[0] = sbox(state[0])
	mdsMultiply(state)
}

func addRoundConstants(state *[Width]fr.Element, round, width int) {
	base := round * width
	for i := 0; i < width; i++ {
		state[i].Add(&state[i], &RoundConstants[base+i])
	}
}

// sbox computes x^5 via two squarings and one multiplication.
func sbox(x fr.Element) fr.Element {
	var x2, x4, x5 fr.Element
	x2.Square(&x)
	x4.Square(&x2)
	x5.Mul(&x4, &x)
	return x5
}

func mdsMultiply(state *[Width]fr.Element) {
	var next [Width]fr.Element
	for i := 0; i < Width; i++ {
		var acc fr.Element
		for j := 0; j < Width; j++ {
			var term fr.Element
			term.Mul(&MDSMatrix[i][j], &state[j])
			acc.Add(&acc, &term)
		}
		next[i] = acc
	}
	*state = next
}

// Hash2 computes Poseidon(a, b): initial state [0, a, b], permute, output
// state[0].
func Hash2(a, b fr.Element) fr.Element {
	state := [Width]fr.Element{{}, a, b}
	permute(&state)
	return state[0]
}

// Hash absorbs a variable-length slice of field elements. Up to Rate (=2)
// inputs are absorbed directly, matching Hash2. Longer inputs use sponge
// absorption at rate Rate: each chunk of up to Rate elements is added into
// the rate portion of the state before permuting; the final squeeze returns
// state[0]. Empty input is rejected.
func Hash(inputs []fr.Element) (fr.Element, error) {
	if len(inputs) == 0 {
		return fr.Element{}, ErrEmptyInput
	}
	if len(inputs) <= Rate {
		var a, b fr.Element
		a = inputs[0]
		if len(inputs) == 2 {
			b = inputs[1]
		}
		return Hash2(a, b), nil
	}

	var state [Width]fr.Element
	for offset := 0; offset < len(inputs); offset += Rate {
		end := offset + Rate
		if end > len(inputs) {
			end = len(inputs)
		}
		chunk := inputs[offset:end]
		for i, v := range chunk {
			state[1+i].Add(&state[1+i], &v)
		}
		permute(&state)
	}
	return state[0], nil
}

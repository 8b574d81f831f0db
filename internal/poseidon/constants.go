package poseidon

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/zeebo/blake3"
)

// Width, round counts and the domain separator for round-constant
// generation, fixed by SPEC_FULL §4.1. These govern both the native
// permutation in this package and the in-circuit gadget in
// internal/circuits; they MUST stay in lockstep.
const (
	Width        = 3
	FullRounds   = 8
	PartialRounds = 57
	Rate         = Width - 1

	constantsDomain = "Poseidon_BN254_t3_RF8_RP57"
)

// NumConstants is the total count of round constants consumed by the
// permutation: one Width-sized vector added per round.
const NumConstants = Width * (FullRounds + PartialRounds)

// generateRoundConstants deterministically derives the round-constant
// table. For round-constant index i:
//
//	blake3(domain || i as u64 LE || "round_constant") -> LE-mod-order -> Fr
//
// This must be byte-identical to the circuit's constant table, since gnark
// allocates these as circuit constants rather than witnesses.
func generateRoundConstants() []fr.Element {
	constants := make([]fr.Element, NumConstants)
	var idxBuf [8]byte
	for i := 0; i < NumConstants; i++ {
		binary.LittleEndian.PutUint64(idxBuf[:], uint64(i))

		h := blake3.New()
		h.Write([]byte(constantsDomain))
		h.Write(idxBuf[:])
		h.Write([]byte("round_constant"))
		sum := h.Sum(nil)

		constants[i].SetBytesLE(sum)
	}
	return constants
}

// generateMDSMatrix builds the Width x Width Cauchy matrix
// M[i][j] = 1 / (x[i] + y[j]), x[i] = Fr(i), y[j] = Fr(Width+j). A Cauchy
// matrix built this way is guaranteed MDS for distinct x/y entries, which
// holds for Width=3.
func generateMDSMatrix() [][]fr.Element {
	matrix := make([][]fr.Element, Width)
	x := make([]fr.Element, Width)
	y := make([]fr.Element, Width)
	for i := 0; i < Width; i++ {
		x[i].SetUint64(uint64(i))
		y[i].SetUint64(uint64(Width + i))
	}

	var one fr.Element
	one.SetOne()
	for i := 0; i < Width; i++ {
		matrix[i] = make([]fr.Element, Width)
		for j := 0; j < Width; j++ {
			var sum fr.Element
			sum.Add(&x[i], &y[j])
			if sum.IsZero() {
				matrix[i][j] = one
				continue
			}
			var inv fr.Element
			inv.Inverse(&sum)
			matrix[i][j] = inv
		}
	}
	return matrix
}

// RoundConstants and MDSMatrix are computed once at package init and shared
// read-only across every Hasher and every circuit Define call; a Poseidon
// permutation carries no mutable state of its own, so sharing them is safe
// across goroutines (SPEC_FULL §9, "thread-local hasher" note).
var (
	RoundConstants = generateRoundConstants()
	MDSMatrix      = generateMDSMatrix()
)

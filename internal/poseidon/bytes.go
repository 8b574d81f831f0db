package poseidon

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/field"
)

// Hash2Bytes reinterprets two ≤32-byte little-endian buffers as field
// elements and returns Poseidon(a,b) as a canonical 32-byte little-endian
// encoding. Buffers longer than 32 bytes are rejected with
// ErrInvalidLength, matching SPEC_FULL §4.1's ConversionError.
func Hash2Bytes(a, b []byte) ([field.Size]byte, error) {
	if len(a) > field.Size || len(b) > field.Size {
		return [field.Size]byte{}, ErrInvalidLength
	}
	fa := field.FromLEBytesModOrder(a)
	fb := field.FromLEBytesModOrder(b)
	return field.ToBytesLE(Hash2(fa, fb)), nil
}

// Hasher is a stateless, concurrency-safe handle onto the Poseidon
// permutation. It exists purely so call sites that held a "hasher instance"
// in the original implementation have an equivalent type to construct; the
// permutation itself is a pure function of the package-level constants
// tables and carries no per-instance state (SPEC_FULL §9).
type Hasher struct{}

// NewHasher returns a Hasher. Any number of Hashers, or none, may be shared
// freely across goroutines.
func NewHasher() Hasher { return Hasher{} }

// Hash2 delegates to the package-level Hash2.
func (Hasher) Hash2(a, b fr.Element) fr.Element { return Hash2(a, b) }

// Hash delegates to the package-level Hash.
func (Hasher) Hash(inputs []fr.Element) (fr.Element, error) { return Hash(inputs) }

// Package field centralizes prime-field conversions over the BN254 scalar
// field used throughout the shielded pool: byte<->field encodings and the
// domain-separator-to-field mapping shared by Poseidon, note derivation, and
// note encryption.
package field

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/zeebo/blake3"
)

// ErrConversion is returned when a byte slice cannot be interpreted as a
// field element (too long to be a canonical encoding).
var ErrConversion = errors.New("field: byte length exceeds 32-byte canonical encoding")

// Size is the canonical byte length of an Fr element.
const Size = fr.Bytes

// FromLEBytesModOrder reduces an arbitrary-length little-endian byte buffer
// into an Fr element modulo the field order. This is the "hash-first,
// field-reduce" step every secret must pass through before entering a
// circuit (SPEC_FULL §9).
func FromLEBytesModOrder(b []byte) fr.Element {
	var e fr.Element
	e.SetBytesLE(b)
	return e
}

// FromBEBytesModOrder reduces a big-endian byte buffer into an Fr element.
func FromBEBytesModOrder(b []byte) fr.Element {
	var e fr.Element
	e.SetBytes(b)
	return e
}

// FromCanonicalLE decodes at most 32 little-endian bytes as a field element,
// failing with ErrConversion if the input is longer than 32 bytes; shorter
// input is accepted. Used for wire formats that specify a fixed 32-byte
// encoding.
func FromCanonicalLE(b []byte) (fr.Element, error) {
	if len(b) > Size {
		return fr.Element{}, ErrConversion
	}
	var e fr.Element
	e.SetBytesLE(b)
	return e, nil
}

// FromUint64 maps a small integer into the field.
func FromUint64(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

// ToBytesLE returns the canonical 32-byte little-endian encoding.
func ToBytesLE(e fr.Element) [Size]byte {
	b := e.Bytes() // big-endian canonical
	var le [Size]byte
	for i := 0; i < Size; i++ {
		le[i] = b[Size-1-i]
	}
	return le
}

// ToBytesBE returns the canonical 32-byte big-endian encoding.
func ToBytesBE(e fr.Element) [Size]byte {
	return e.Bytes()
}

// ReverseBytes32 returns a byte-reversed copy of a 32-byte slice, used by the
// Groth16 endianness bridge to flip individual coordinate halves
// independently (SPEC_FULL §4.6).
func ReverseBytes32(b []byte) [32]byte {
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = b[31-i]
	}
	return out
}

// DomainTag maps an ASCII domain-separator string into the field via
// little-endian-mod-order reduction of its blake3 hash, per SPEC_FULL §6.
func DomainTag(tag string) fr.Element {
	sum := blake3.Sum256([]byte(tag))
	return FromLEBytesModOrder(sum[:])
}

// RandomElement draws a uniformly random field element from the OS entropy
// source. Every blinding factor, ephemeral key, and toxic-waste value in
// this module must route through this function rather than a deterministic
// derivation (SPEC_FULL §5).
func RandomElement() (fr.Element, error) {
	var e fr.Element
	_, err := e.SetRandom()
	return e, err
}

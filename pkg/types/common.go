// Package types defines the wire-level primitives shared across the
// shielded pool: fixed-size hashes, addresses, and field-element encodings.
package types

import "encoding/hex"

const (
	// HashSize is the size of a generic 32-byte hash or field element.
	HashSize = 32

	// AddressSize is the size of a host-chain account address.
	AddressSize = 32

	// SignatureSize is the size of an Ed25519 signature.
	SignatureSize = 64
)

// Hash represents a 32-byte hash, field element, commitment, or nullifier.
// Most of this package's domain values round-trip through Hash rather than
// introducing a dozen distinct fixed-size array types.
type Hash [HashSize]byte

// Address represents a host-chain account address.
type Address [AddressSize]byte

// Signature represents a detached Ed25519 signature.
type Signature [SignatureSize]byte

// EmptyHash is the zero hash.
var EmptyHash = Hash{}

// EmptyAddress is the zero address.
var EmptyAddress = Address{}

// IsEmpty returns true if the hash is all zeros.
func (h Hash) IsEmpty() bool {
	return h == EmptyHash
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String returns the hex string representation of the hash.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// HashFromBytes creates a Hash from a byte slice, truncating or
// zero-padding on the right to HashSize.
func HashFromBytes(b []byte) Hash {
	var h Hash
	n := len(b)
	if n > HashSize {
		n = HashSize
	}
	copy(h[:], b[:n])
	return h
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// String returns the hex string representation of the address.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

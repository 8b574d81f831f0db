package zkp

import (
	"crypto/rand"
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/poseidon"
	"github.com/nyxlabs/veil/pkg/types"
)

// Domain separators for the Poseidon-based note model (SPEC_FULL §6).
const (
	domainSpendingKey = "NYX_SPENDING_KEY"
	domainNullifier   = "NYX_NULLIFIER"
)

// Errors returned by the note primitives.
var (
	ErrInvalidSecretLength = errors.New("zkp: secret must be exactly 32 bytes")
)

// SpendingKey is the secret that parameterizes every note a holder owns. The
// transfer circuit recomputes it from the secret, which it takes as a
// private witness.
type SpendingKey struct {
	element fr.Element
}

// DeriveSpendingKey computes sk = Poseidon(F(s), F(D_sk)) from a 32-byte
// secret (SPEC_FULL §3). The transfer circuit performs the same derivation
// in-circuit from F(s).
func DeriveSpendingKey(secret []byte) (SpendingKey, error) {
	if len(secret) != 32 {
		return SpendingKey{}, ErrInvalidSecretLength
	}
	s := field.FromLEBytesModOrder(secret)
	d := field.DomainTag(domainSpendingKey)
	sk := poseidon.Hash2(s, d)
	return SpendingKey{element: sk}, nil
}

// RandomSecret draws a fresh 32-byte secret from the OS entropy source.
func RandomSecret() ([32]byte, error) {
	var s [32]byte
	_, err := rand.Read(s[:])
	return s, err
}

// Element exposes the underlying field element for use by the circuit
// witness assembler and note derivation functions in this package.
func (k SpendingKey) Element() fr.Element { return k.element }

// Bytes returns the canonical little-endian encoding of sk.
func (k SpendingKey) Bytes() types.Hash {
	return types.Hash(field.ToBytesLE(k.element))
}

// Note is the full set of values describing a shielded note. The secret s
// is retained by the owner; sk, v, r, a, and i are the values that flow
// into commitment and nullifier derivation.
type Note struct {
	SpendingKey SpendingKey
	Value       uint64
	Blinding    fr.Element
	Asset       uint64
	Index       uint64
}

// RandomBlinding draws a fresh blinding factor from the OS entropy source
// (SPEC_FULL §5: every blinding factor must use crypto-grade randomness,
// never a deterministic derivation).
func RandomBlinding() (fr.Element, error) {
	return field.RandomElement()
}

// Commitment computes C = Poseidon(Poseidon(sk, v), Poseidon(r, a))
// (SPEC_FULL §3).
func Commitment(sk fr.Element, value uint64, blinding fr.Element, asset uint64) fr.Element {
	inner1 := poseidon.Hash2(sk, field.FromUint64(value))
	inner2 := poseidon.Hash2(blinding, field.FromUint64(asset))
	return poseidon.Hash2(inner1, inner2)
}

// Commitment returns the commitment for this note: Poseidon(Poseidon(sk,
// v), Poseidon(r, a)).
func (n Note) Commitment() fr.Element {
	return Commitment(n.SpendingKey.Element(), n.Value, n.Blinding, n.Asset)
}

// Nullifier computes nf = Poseidon(sk, Poseidon(F(i), F(D_nf)))
// (SPEC_FULL §3, §4.3). Hashing the index together with the domain tag
// rather than using i directly protects the circuit from low-order
// structural attacks and enforces domain separation.
func Nullifier(sk fr.Element, index uint64) fr.Element {
	inner := poseidon.Hash2(field.FromUint64(index), field.DomainTag(domainNullifier))
	return poseidon.Hash2(sk, inner)
}

// Nullifier returns this note's nullifier, derived from its spending key
// and assigned leaf index.
func (n Note) Nullifier() fr.Element {
	return Nullifier(n.SpendingKey.Element(), n.Index)
}

// CommitmentBytes returns the canonical 32-byte little-endian encoding of a
// commitment, matching SPEC_FULL §6's wire format.
func CommitmentBytes(c fr.Element) types.Hash {
	return types.Hash(field.ToBytesLE(c))
}

// NullifierBytes returns the canonical 32-byte little-endian encoding of a
// nullifier.
func NullifierBytes(nf fr.Element) types.Hash {
	return types.Hash(field.ToBytesLE(nf))
}

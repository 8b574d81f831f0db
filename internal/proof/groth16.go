// Package proof wraps gnark's Groth16 backend for the transfer circuit:
// setup, proving, verification, and the 256-byte serialized proof format
// with its endianness bridge for on-chain verifiers (SPEC_FULL §4.6).
package proof

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/nyxlabs/veil/internal/circuits"
	"github.com/nyxlabs/veil/internal/field"
)

// Wire size constants (SPEC_FULL §6).
const (
	G1Size    = 64
	G2Size    = 128
	ProofSize = G1Size + G2Size + G1Size // A || B || C
)

// Errors returned by this package.
var (
	ErrInvalidProofLength     = errors.New("proof: serialized proof must be exactly 256 bytes")
	ErrUnexpectedProofBackend = errors.New("proof: unexpected proof implementation type")
)

// ProvingKey and VerifyingKey alias gnark's Groth16 key types so callers
// never need to import gnark directly outside this package.
type (
	ProvingKey   = groth16.ProvingKey
	VerifyingKey = groth16.VerifyingKey
)

// Setup compiles the transfer circuit and runs the Groth16 trusted setup.
// The setup randomness is drawn inside gnark's groth16.Setup; this wrapper
// takes no entropy source from the caller and does not itself certify the
// setup (SPEC_FULL §4.6).
func Setup() (ProvingKey, VerifyingKey, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, nil, err
	}
	return groth16.Setup(ccs)
}

// CompileCircuit compiles the transfer circuit, exposed separately from
// Setup so a caller can reuse one compiled constraint system across
// repeated Prove calls without paying compilation's cost again.
func CompileCircuit() (frontend.CompiledConstraintSystem, error) {
	return frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuits.NewTransferCircuit())
}

// Prove runs the prover over the given witness circuit and returns the
// proof serialized to the 256-byte on-chain wire format.
func Prove(ccs frontend.CompiledConstraintSystem, pk ProvingKey, assignment *circuits.TransferCircuit) ([]byte, error) {
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	groth16Proof, err := groth16.Prove(ccs, pk, witness)
	if err != nil {
		return nil, err
	}

	return Serialize(groth16Proof)
}

// Verify checks a serialized proof against the given public inputs
// (ordered [merkle_root, nullifier, new_commitment] per SPEC_FULL §4.4) and
// verifying key.
func Verify(proofBytes []byte, publicInputs [circuits.NumPublicInputs]*big.Int, vk VerifyingKey) (bool, error) {
	groth16Proof, err := Deserialize(proofBytes)
	if err != nil {
		return false, err
	}

	assignment := &circuits.TransferCircuit{
		MerkleRoot:    publicInputs[0],
		Nullifier:     publicInputs[1],
		NewCommitment: publicInputs[2],
	}
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, err
	}

	if err := groth16.Verify(groth16Proof, vk, witness); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyingKeyFromBytes decodes a verifying key previously written with
// WriteVerifyingKey, using gnark's native (non-wire-bridged) key encoding —
// the 256-byte endianness bridge in Serialize/Deserialize applies only to
// proofs, not to keys, which never cross the on-chain boundary in this
// module.
func VerifyingKeyFromBytes(b []byte) (VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return vk, nil
}

// WriteVerifyingKey encodes a verifying key with gnark's native encoding,
// the inverse of VerifyingKeyFromBytes.
func WriteVerifyingKey(vk VerifyingKey) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Serialize encodes a Groth16 proof as A(64) || B(128) || C(64), each
// coordinate in its big-endian canonical encoding, negating A first to
// match the on-chain verifier's pairing check with -A on the left
// (SPEC_FULL §4.6).
func Serialize(p groth16.Proof) ([]byte, error) {
	bn254Proof, ok := p.(*groth16bn254.Proof)
	if !ok {
		return nil, ErrUnexpectedProofBackend
	}

	var negA bn254.G1Affine
	negA.Neg(&bn254Proof.Ar)

	out := make([]byte, 0, ProofSize)
	out = append(out, g1Bytes(negA)...)
	out = append(out, g2Bytes(bn254Proof.Bs)...)
	out = append(out, g1Bytes(bn254Proof.Krs)...)
	return out, nil
}

// Deserialize decodes the 256-byte wire format back into a groth16.Proof,
// negating A back to its original sign before handing it to gnark's
// verifier (which expects the prover's un-negated A).
func Deserialize(b []byte) (groth16.Proof, error) {
	if len(b) != ProofSize {
		return nil, ErrInvalidProofLength
	}

	p := &groth16bn254.Proof{}

	negA, err := g1FromBytes(b[0:G1Size])
	if err != nil {
		return nil, err
	}
	p.Ar.Neg(&negA)

	bs, err := g2FromBytes(b[G1Size : G1Size+G2Size])
	if err != nil {
		return nil, err
	}
	p.Bs = bs

	krs, err := g1FromBytes(b[G1Size+G2Size : ProofSize])
	if err != nil {
		return nil, err
	}
	p.Krs = krs

	return p, nil
}

// g1Bytes encodes a G1 point as two 32-byte big-endian halves (x, y).
func g1Bytes(p bn254.G1Affine) []byte {
	x := p.X.Bytes()
	y := p.Y.Bytes()
	out := make([]byte, 0, G1Size)
	out = append(out, x[:]...)
	out = append(out, y[:]...)
	return out
}

func g1FromBytes(b []byte) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	p.X.SetBytes(b[0:32])
	p.Y.SetBytes(b[32:64])
	return p, nil
}

// g2Bytes encodes a G2 point as four 32-byte big-endian halves:
// (x.c0, x.c1, y.c0, y.c1), matching SPEC_FULL §4.6.
func g2Bytes(p bn254.G2Affine) []byte {
	xc0 := p.X.A0.Bytes()
	xc1 := p.X.A1.Bytes()
	yc0 := p.Y.A0.Bytes()
	yc1 := p.Y.A1.Bytes()

	out := make([]byte, 0, G2Size)
	out = append(out, xc0[:]...)
	out = append(out, xc1[:]...)
	out = append(out, yc0[:]...)
	out = append(out, yc1[:]...)
	return out
}

func g2FromBytes(b []byte) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	p.X.A0.SetBytes(b[0:32])
	p.X.A1.SetBytes(b[32:64])
	p.Y.A0.SetBytes(b[64:96])
	p.Y.A1.SetBytes(b[96:128])
	return p, nil
}

// ToLittleEndianCoordinate reverses a single 32-byte big-endian coordinate
// into little-endian, the bridge operation SPEC_FULL §4.6 requires between
// this module's off-chain little-endian convention (§3) and the on-chain
// verifier's big-endian input.
func ToLittleEndianCoordinate(be [32]byte) [32]byte {
	return field.ReverseBytes32(be[:])
}

// ToBigEndianCoordinate reverses a little-endian coordinate back to
// big-endian; it is its own inverse with ToLittleEndianCoordinate.
func ToBigEndianCoordinate(le [32]byte) [32]byte {
	return field.ReverseBytes32(le[:])
}

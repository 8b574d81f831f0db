package envelope

import (
	"bytes"
	"testing"

	"github.com/nyxlabs/veil/internal/field"
)

func TestSealOpenRoundTrip(t *testing.T) {
	recipientSK, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey returned error: %v", err)
	}
	recipientPK := recipientSK.Public()

	blinding, err := field.RandomElement()
	if err != nil {
		t.Fatalf("RandomElement returned error: %v", err)
	}
	payload := NotePayload{Amount: 1_000_000, Blinding: blinding, AssetID: 7}

	env, err := Seal(recipientPK, payload)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if len(env) != EnvelopeSize {
		t.Fatalf("expected envelope of %d bytes, got %d", EnvelopeSize, len(env))
	}

	got, err := Open(recipientSK, env)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if got.Amount != payload.Amount || got.AssetID != payload.AssetID || !got.Blinding.Equal(&payload.Blinding) {
		t.Fatalf("decrypted payload mismatch: got %+v, want %+v", got, payload)
	}
}

func TestOpenRejectsWrongRecipient(t *testing.T) {
	recipientSK, _ := GeneratePrivateKey()
	recipientPK := recipientSK.Public()

	blinding, _ := field.RandomElement()
	payload := NotePayload{Amount: 42, Blinding: blinding, AssetID: 0}

	env, err := Seal(recipientPK, payload)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}

	otherSK, _ := GeneratePrivateKey()
	if _, err := Open(otherSK, env); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestOpenRejectsWrongLength(t *testing.T) {
	if _, err := Open(PrivateKey{}, make([]byte, EnvelopeSize-1)); err != ErrInvalidEnvelopeLength {
		t.Fatalf("expected ErrInvalidEnvelopeLength, got %v", err)
	}
}

func TestSealProducesDistinctCiphertextsForSameNote(t *testing.T) {
	recipientSK, _ := GeneratePrivateKey()
	recipientPK := recipientSK.Public()

	blinding, _ := field.RandomElement()
	payload := NotePayload{Amount: 5, Blinding: blinding, AssetID: 1}

	env1, err := Seal(recipientPK, payload)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	env2, err := Seal(recipientPK, payload)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if bytes.Equal(env1, env2) {
		t.Fatal("two seals of the same payload produced identical envelopes; ephemeral key is not being randomized")
	}
}

func TestPublicKeyBytesRoundTrip(t *testing.T) {
	sk, _ := GeneratePrivateKey()
	pk := sk.Public()

	decoded, err := PublicKeyFromBytes(pk.Bytes())
	if err != nil {
		t.Fatalf("PublicKeyFromBytes returned error: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), pk.Bytes()) {
		t.Fatal("public key did not round-trip through Bytes/PublicKeyFromBytes")
	}
}

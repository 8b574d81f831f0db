package main

import (
	"encoding/hex"
	"flag"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/zkp"
)

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func loadNoteSecrets(secretHex, blindingHex string) (zkp.SpendingKey, fr.Element, error) {
	secret, err := decodeHex32(secretHex)
	if err != nil {
		return zkp.SpendingKey{}, fr.Element{}, fmt.Errorf("invalid -secret: %w", err)
	}
	sk, err := zkp.DeriveSpendingKey(secret[:])
	if err != nil {
		return zkp.SpendingKey{}, fr.Element{}, fmt.Errorf("failed to derive spending key: %w", err)
	}

	blindingBytes, err := decodeHex32(blindingHex)
	if err != nil {
		return zkp.SpendingKey{}, fr.Element{}, fmt.Errorf("invalid -blinding: %w", err)
	}
	blinding, err := field.FromCanonicalLE(blindingBytes[:])
	if err != nil {
		return zkp.SpendingKey{}, fr.Element{}, fmt.Errorf("invalid -blinding: %w", err)
	}

	return sk, blinding, nil
}

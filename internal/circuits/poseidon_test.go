package circuits

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/poseidon"
)

type hash2Circuit struct {
	A, B frontend.Variable
	Hash frontend.Variable `gnark:",public"`
}

func (c *hash2Circuit) Define(api frontend.API) error {
	h := PoseidonHash2(api, c.A, c.B)
	api.AssertIsEqual(h, c.Hash)
	return nil
}

func TestPoseidonHash2MatchesNative(t *testing.T) {
	assert := test.NewAssert(t)

	a := field.FromUint64(10)
	b := field.FromUint64(20)
	want := poseidon.Hash2(a, b)
	wantInt := want.BigInt(new(big.Int))

	assert.ProverSucceeded(&hash2Circuit{}, &hash2Circuit{
		A:    10,
		B:    20,
		Hash: wantInt,
	}, test.WithCurves(ecc.BN254))
}

func TestPoseidonHash2RejectsWrongHash(t *testing.T) {
	assert := test.NewAssert(t)

	assert.ProverFailed(&hash2Circuit{}, &hash2Circuit{
		A:    10,
		B:    20,
		Hash: 999,
	}, test.WithCurves(ecc.BN254))
}

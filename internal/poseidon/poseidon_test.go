package poseidon

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

func TestConstantsShape(t *testing.T) {
	if len(RoundConstants) != NumConstants {
		t.Fatalf("expected %d round constants, got %d", NumConstants, len(RoundConstants))
	}
	if len(MDSMatrix) != Width {
		t.Fatalf("expected MDS matrix with %d rows, got %d", Width, len(MDSMatrix))
	}
	for i, row := range MDSMatrix {
		if len(row) != Width {
			t.Fatalf("row %d: expected %d columns, got %d", i, Width, len(row))
		}
	}
	for i, c := range RoundConstants {
		if c.IsZero() {
			t.Errorf("round constant %d is zero", i)
		}
	}
}

func TestConstantsDeterministic(t *testing.T) {
	c1 := generateRoundConstants()
	c2 := generateRoundConstants()
	for i := range c1 {
		if !c1[i].Equal(&c2[i]) {
			t.Fatalf("round constant %d differs between runs", i)
		}
	}
}

func TestHash2Deterministic(t *testing.T) {
	var a, b fr.Element
	a.SetUint64(1)
	b.SetUint64(2)

	h1 := Hash2(a, b)
	h2 := Hash2(a, b)
	if !h1.Equal(&h2) {
		t.Fatal("Hash2 is not deterministic")
	}
}

func TestHash2DifferentInputsDifferentOutputs(t *testing.T) {
	var a, b, c fr.Element
	a.SetUint64(1)
	b.SetUint64(2)
	c.SetUint64(3)

	h1 := Hash2(a, b)
	h2 := Hash2(a, c)
	if h1.Equal(&h2) {
		t.Fatal("different inputs produced the same hash")
	}
}

func TestHashMatchesHash2ForTwoInputs(t *testing.T) {
	var a, b fr.Element
	a.SetUint64(10)
	b.SetUint64(20)

	viaHash2 := Hash2(a, b)
	viaHash, err := Hash([]fr.Element{a, b})
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !viaHash2.Equal(&viaHash) {
		t.Fatal("Hash([a,b]) does not match Hash2(a,b)")
	}
}

func TestHashSingleInput(t *testing.T) {
	var a fr.Element
	a.SetUint64(42)

	var zero fr.Element
	expected := Hash2(a, zero)

	got, err := Hash([]fr.Element{a})
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !got.Equal(&expected) {
		t.Fatal("Hash([a]) does not match Hash2(a, 0)")
	}
}

func TestHashEmptyInputFails(t *testing.T) {
	_, err := Hash(nil)
	if err != ErrEmptyInput {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestHashSpongeAbsorbsMultipleBlocks(t *testing.T) {
	inputs := make([]fr.Element, 5)
	for i := range inputs {
		inputs[i].SetUint64(uint64(i + 1))
	}

	h1, err := Hash(inputs)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	h2, err := Hash(inputs)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !h1.Equal(&h2) {
		t.Fatal("sponge hash is not deterministic")
	}

	// Changing any absorbed element should change the output.
	perturbed := make([]fr.Element, len(inputs))
	copy(perturbed, inputs)
	perturbed[4].SetUint64(999)
	h3, err := Hash(perturbed)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if h1.Equal(&h3) {
		t.Fatal("perturbing the last absorbed element did not change the hash")
	}
}

func TestHash2BytesRejectsOversizedInput(t *testing.T) {
	oversized := make([]byte, 33)
	if _, err := Hash2Bytes(oversized, []byte{1}); err != ErrInvalidLength {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestHash2BytesDeterministic(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5, 6}

	h1, err := Hash2Bytes(a, b)
	if err != nil {
		t.Fatalf("Hash2Bytes returned error: %v", err)
	}
	h2, err := Hash2Bytes(a, b)
	if err != nil {
		t.Fatalf("Hash2Bytes returned error: %v", err)
	}
	if h1 != h2 {
		t.Fatal("Hash2Bytes is not deterministic")
	}
}

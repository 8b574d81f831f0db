package zkp

import "testing"

func TestDeriveSpendingKeyDeterministic(t *testing.T) {
	secret := [32]byte{1, 2, 3}

	sk1, err := DeriveSpendingKey(secret[:])
	if err != nil {
		t.Fatalf("DeriveSpendingKey returned error: %v", err)
	}
	sk2, err := DeriveSpendingKey(secret[:])
	if err != nil {
		t.Fatalf("DeriveSpendingKey returned error: %v", err)
	}
	if sk1.Bytes() != sk2.Bytes() {
		t.Fatal("DeriveSpendingKey is not deterministic")
	}
}

func TestDeriveSpendingKeyRejectsWrongLength(t *testing.T) {
	if _, err := DeriveSpendingKey([]byte{1, 2, 3}); err != ErrInvalidSecretLength {
		t.Fatalf("expected ErrInvalidSecretLength, got %v", err)
	}
}

func TestCommitmentDeterministicAndDistinct(t *testing.T) {
	secretA := [32]byte{9}
	secretB := [32]byte{10}

	skA, _ := DeriveSpendingKey(secretA[:])
	skB, _ := DeriveSpendingKey(secretB[:])

	blinding, err := RandomBlinding()
	if err != nil {
		t.Fatalf("RandomBlinding returned error: %v", err)
	}

	c1 := Commitment(skA.Element(), 100, blinding, 0)
	c2 := Commitment(skA.Element(), 100, blinding, 0)
	if !c1.Equal(&c2) {
		t.Fatal("Commitment is not deterministic")
	}

	c3 := Commitment(skB.Element(), 100, blinding, 0)
	if c1.Equal(&c3) {
		t.Fatal("different spending keys produced the same commitment")
	}
}

func TestNullifierDeterministicAndIndexSensitive(t *testing.T) {
	secret := [32]byte{7}
	sk, _ := DeriveSpendingKey(secret[:])

	nf1 := Nullifier(sk.Element(), 5)
	nf2 := Nullifier(sk.Element(), 5)
	if !nf1.Equal(&nf2) {
		t.Fatal("Nullifier is not deterministic")
	}

	nf3 := Nullifier(sk.Element(), 6)
	if nf1.Equal(&nf3) {
		t.Fatal("different indices produced the same nullifier")
	}
}

func TestNoteCommitmentAndNullifierMatchFreeFunctions(t *testing.T) {
	secret := [32]byte{3, 3, 3}
	sk, _ := DeriveSpendingKey(secret[:])
	blinding, _ := RandomBlinding()

	n := Note{
		SpendingKey: sk,
		Value:       42,
		Blinding:    blinding,
		Asset:       1,
		Index:       9,
	}

	wantC := Commitment(sk.Element(), 42, blinding, 1)
	gotC := n.Commitment()
	if !wantC.Equal(&gotC) {
		t.Fatal("Note.Commitment() does not match the free Commitment function")
	}

	wantNf := Nullifier(sk.Element(), 9)
	gotNf := n.Nullifier()
	if !wantNf.Equal(&gotNf) {
		t.Fatal("Note.Nullifier() does not match the free Nullifier function")
	}
}

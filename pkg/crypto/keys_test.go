package crypto

import (
	"bytes"
	"testing"
)

func mustMainKey(t *testing.T) *MainSecretKey {
	t.Helper()
	sk, err := GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	return sk
}

func mustIndex(t *testing.T) DerivationIndex {
	t.Helper()
	idx, err := RandomDerivationIndex()
	if err != nil {
		t.Fatalf("RandomDerivationIndex: %v", err)
	}
	return idx
}

func TestDeriveUniquePubkey_Deterministic(t *testing.T) {
	sk := mustMainKey(t)
	mp := sk.MainPubkey()
	idx := mustIndex(t)

	a, err := mp.DeriveUniquePubkey(idx)
	if err != nil {
		t.Fatalf("DeriveUniquePubkey: %v", err)
	}
	b, err := mp.DeriveUniquePubkey(idx)
	if err != nil {
		t.Fatalf("DeriveUniquePubkey: %v", err)
	}
	if a != b {
		t.Errorf("same index derived different keys: %s vs %s", a, b)
	}
}

func TestDeriveUniquePubkey_DistinctPerIndex(t *testing.T) {
	sk := mustMainKey(t)
	mp := sk.MainPubkey()

	seen := make(map[UniquePubkey]bool)
	for i := 0; i < 32; i++ {
		up, err := mp.DeriveUniquePubkey(mustIndex(t))
		if err != nil {
			t.Fatalf("DeriveUniquePubkey: %v", err)
		}
		if seen[up] {
			t.Fatalf("derived key collision at iteration %d", i)
		}
		seen[up] = true
	}
}

func TestDeriveKey_MatchesPublicDerivation(t *testing.T) {
	sk := mustMainKey(t)
	idx := mustIndex(t)

	want, err := sk.MainPubkey().DeriveUniquePubkey(idx)
	if err != nil {
		t.Fatalf("DeriveUniquePubkey: %v", err)
	}
	dk, err := sk.DeriveKey(idx)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if got := dk.UniquePubkey(); got != want {
		t.Errorf("secret-side derivation = %s, want %s", got, want)
	}
}

func TestDeriveUniquePubkey_DistinctAcrossOwners(t *testing.T) {
	idx := mustIndex(t)

	a, err := mustMainKey(t).MainPubkey().DeriveUniquePubkey(idx)
	if err != nil {
		t.Fatalf("DeriveUniquePubkey: %v", err)
	}
	b, err := mustMainKey(t).MainPubkey().DeriveUniquePubkey(idx)
	if err != nil {
		t.Fatalf("DeriveUniquePubkey: %v", err)
	}
	if a == b {
		t.Error("same index on different main keys derived the same key")
	}
}

func TestSignVerify(t *testing.T) {
	sk := mustMainKey(t)
	dk, err := sk.DeriveKey(mustIndex(t))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	up := dk.UniquePubkey()

	msg := []byte("spend record bytes")
	sig, err := dk.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !up.Verify(sig, msg) {
		t.Error("valid signature rejected")
	}
	if up.Verify(sig, []byte("different bytes")) {
		t.Error("signature verified against a different message")
	}

	tampered := append([]byte(nil), sig...)
	tampered[10] ^= 0x01
	if up.Verify(tampered, msg) {
		t.Error("tampered signature verified")
	}
}

func TestVerify_WrongKey(t *testing.T) {
	sk := mustMainKey(t)
	dk, err := sk.DeriveKey(mustIndex(t))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	other, err := sk.DeriveKey(mustIndex(t))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	msg := []byte("spend record bytes")
	sig, err := dk.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if other.UniquePubkey().Verify(sig, msg) {
		t.Error("signature verified under a different key")
	}
}

func TestParseMainPubkey_RoundTrip(t *testing.T) {
	mp := mustMainKey(t).MainPubkey()
	parsed, err := ParseMainPubkey(mp.String())
	if err != nil {
		t.Fatalf("ParseMainPubkey: %v", err)
	}
	if parsed != mp {
		t.Errorf("round trip = %s, want %s", parsed, mp)
	}
}

func TestParseMainPubkey_Invalid(t *testing.T) {
	cases := []string{
		"",
		"zz",
		"deadbeef", // too short
	}
	for _, c := range cases {
		if _, err := ParseMainPubkey(c); err == nil {
			t.Errorf("ParseMainPubkey(%q) accepted invalid input", c)
		}
	}
}

func TestSharedSecret_Agreement(t *testing.T) {
	recipient := mustMainKey(t)

	ek, err := NewEphemeralKey()
	if err != nil {
		t.Fatalf("NewEphemeralKey: %v", err)
	}
	senderSide, err := ek.SharedSecret(recipient.MainPubkey())
	if err != nil {
		t.Fatalf("sender SharedSecret: %v", err)
	}
	recipientSide, err := recipient.SharedSecret(ek.PublicBytes())
	if err != nil {
		t.Fatalf("recipient SharedSecret: %v", err)
	}
	if !bytes.Equal(senderSide, recipientSide) {
		t.Error("ECDH sides disagree")
	}

	other := mustMainKey(t)
	otherSide, err := other.SharedSecret(ek.PublicBytes())
	if err != nil {
		t.Fatalf("other SharedSecret: %v", err)
	}
	if bytes.Equal(senderSide, otherSide) {
		t.Error("unrelated key derived the same secret")
	}
}

func TestSpendAddress_Stable(t *testing.T) {
	sk := mustMainKey(t)
	dk, err := sk.DeriveKey(mustIndex(t))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	up := dk.UniquePubkey()
	if up.SpendAddress() != up.SpendAddress() {
		t.Error("spend address not stable")
	}

	other, err := sk.DeriveKey(mustIndex(t))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if up.SpendAddress() == other.UniquePubkey().SpendAddress() {
		t.Error("distinct keys share a spend address")
	}
}

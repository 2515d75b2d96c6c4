package transfer

import (
	"errors"
	"testing"

	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/types"
)

func testRedemptions(t *testing.T, n int) []CashNoteRedemption {
	t.Helper()
	out := make([]CashNoteRedemption, n)
	for i := range out {
		idx, err := crypto.RandomDerivationIndex()
		if err != nil {
			t.Fatalf("RandomDerivationIndex: %v", err)
		}
		out[i] = CashNoteRedemption{
			DerivationIndex:      idx,
			ParentSpendAddresses: []types.SpendAddress{{byte(i + 1)}, {byte(i + 2)}},
		}
	}
	return out
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	recipient, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	want := testRedemptions(t, 3)

	tr, err := Encode(want, recipient.MainPubkey())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(tr, recipient)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("redemptions = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].DerivationIndex != want[i].DerivationIndex {
			t.Errorf("redemption %d: index mismatch", i)
		}
		if len(got[i].ParentSpendAddresses) != len(want[i].ParentSpendAddresses) {
			t.Fatalf("redemption %d: parent count mismatch", i)
		}
		for j, a := range want[i].ParentSpendAddresses {
			if got[i].ParentSpendAddresses[j] != a {
				t.Errorf("redemption %d parent %d mismatch", i, j)
			}
		}
	}
}

func TestDecode_WrongKey(t *testing.T) {
	recipient, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	eavesdropper, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}

	tr, err := Encode(testRedemptions(t, 1), recipient.MainPubkey())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(tr, eavesdropper); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Decode with wrong key = %v, want ErrAuthenticationFailed", err)
	}
}

func TestDecode_Tampered(t *testing.T) {
	recipient, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	tr, err := Encode(testRedemptions(t, 1), recipient.MainPubkey())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flip one ciphertext bit.
	tampered := *tr
	tampered.payload = append([]byte(nil), tr.payload...)
	tampered.payload[len(tampered.payload)-1] ^= 0x01
	if _, err := Decode(&tampered, recipient); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Decode(tampered) = %v, want ErrAuthenticationFailed", err)
	}
}

func TestDecode_Truncated(t *testing.T) {
	recipient, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	if _, err := Decode(&Transfer{payload: []byte{1, 2, 3}}, recipient); !errors.Is(err, ErrMalformedTransfer) {
		t.Errorf("Decode(short blob) = %v, want ErrMalformedTransfer", err)
	}
	if _, err := Decode(nil, recipient); !errors.Is(err, ErrMalformedTransfer) {
		t.Errorf("Decode(nil) = %v, want ErrMalformedTransfer", err)
	}
}

func TestEncode_Empty(t *testing.T) {
	recipient, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	if _, err := Encode(nil, recipient.MainPubkey()); !errors.Is(err, ErrMalformedTransfer) {
		t.Errorf("Encode(empty) = %v, want ErrMalformedTransfer", err)
	}
}

func TestHex_RoundTrip(t *testing.T) {
	recipient, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	want := testRedemptions(t, 2)
	tr, err := Encode(want, recipient.MainPubkey())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	back, err := FromHex(tr.ToHex())
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	got, err := Decode(back, recipient)
	if err != nil {
		t.Fatalf("Decode after hex round trip: %v", err)
	}
	if len(got) != len(want) {
		t.Errorf("redemptions = %d, want %d", len(got), len(want))
	}
}

func TestFromHex_Invalid(t *testing.T) {
	if _, err := FromHex("not hex"); !errors.Is(err, ErrMalformedTransfer) {
		t.Errorf("FromHex(garbage) = %v, want ErrMalformedTransfer", err)
	}
	if _, err := FromHex("abcd"); !errors.Is(err, ErrMalformedTransfer) {
		t.Errorf("FromHex(short) = %v, want ErrMalformedTransfer", err)
	}
}

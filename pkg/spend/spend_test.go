package spend

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/meshcash/meshcash/config"
	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/types"
)

// party is a test wallet identity with one derived single-use key.
type party struct {
	sk    *crypto.MainSecretKey
	dk    *crypto.DerivedSecretKey
	upk   crypto.UniquePubkey
	index crypto.DerivationIndex
}

func newParty(t *testing.T) *party {
	t.Helper()
	sk, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	idx, err := crypto.RandomDerivationIndex()
	if err != nil {
		t.Fatalf("RandomDerivationIndex: %v", err)
	}
	dk, err := sk.DeriveKey(idx)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	return &party{sk: sk, dk: dk, upk: dk.UniquePubkey(), index: idx}
}

// spendGenesisTo signs a spend of the full genesis allocation to upk.
func spendGenesisTo(t *testing.T, upk crypto.UniquePubkey) *SignedSpend {
	t.Helper()
	note := GenesisCashNote()
	dk, err := note.DerivedKey(GenesisKey())
	if err != nil {
		t.Fatalf("genesis DerivedKey: %v", err)
	}
	noteKey, err := note.UniquePubkey()
	if err != nil {
		t.Fatalf("genesis note UniquePubkey: %v", err)
	}
	value, err := note.Value()
	if err != nil {
		t.Fatalf("genesis note Value: %v", err)
	}
	s, err := BuildSpend(noteKey, note.ParentSpends, map[crypto.UniquePubkey]types.Amount{upk: value})
	if err != nil {
		t.Fatalf("BuildSpend: %v", err)
	}
	signed, err := Sign(s, dk)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return signed
}

func parentsOf(records ...*SignedSpend) map[types.SpendAddress][]SignedSpend {
	parents := make(map[types.SpendAddress][]SignedSpend)
	for _, r := range records {
		parents[r.Address()] = append(parents[r.Address()], *r)
	}
	return parents
}

func TestGenesis_SelfContained(t *testing.T) {
	g := Genesis()
	if err := Validate(g, nil); err != nil {
		t.Fatalf("genesis failed validation: %v", err)
	}
	note := GenesisCashNote()
	value, err := note.Value()
	if err != nil {
		t.Fatalf("genesis note Value: %v", err)
	}
	if value.Nanos() != config.TotalSupply {
		t.Errorf("genesis note value = %d, want %d", value.Nanos(), config.TotalSupply)
	}
}

func TestGenesis_ForgeryRejected(t *testing.T) {
	// A record at the genesis key with different contents must not pass
	// by claiming the genesis exemption.
	forged := *Genesis()
	thief := newParty(t)
	forged.Spend.Descendants = map[crypto.UniquePubkey]types.Amount{
		thief.upk: types.Amount(config.TotalSupply),
	}
	if err := Validate(&forged, nil); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Validate(forged genesis) = %v, want ErrInvalidSignature", err)
	}
}

func TestValidate_ChainFromGenesis(t *testing.T) {
	alice := newParty(t)
	first := spendGenesisTo(t, alice.upk)
	if err := Validate(first, parentsOf(Genesis())); err != nil {
		t.Fatalf("Validate(first spend): %v", err)
	}

	// Alice forwards the whole amount onward.
	bob := newParty(t)
	s, err := BuildSpend(alice.upk, []SignedSpend{*first}, map[crypto.UniquePubkey]types.Amount{
		bob.upk: types.Amount(config.TotalSupply),
	})
	if err != nil {
		t.Fatalf("BuildSpend: %v", err)
	}
	second, err := Sign(s, alice.dk)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Validate(second, parentsOf(first)); err != nil {
		t.Errorf("Validate(second spend): %v", err)
	}
}

func TestValidate_MissingAncestor(t *testing.T) {
	alice := newParty(t)
	first := spendGenesisTo(t, alice.upk)
	if err := Validate(first, nil); !errors.Is(err, ErrMissingAncestor) {
		t.Errorf("Validate without parents = %v, want ErrMissingAncestor", err)
	}
}

func TestValidate_BurntAncestor(t *testing.T) {
	alice := newParty(t)
	bob := newParty(t)

	// Two distinct spends of the same genesis note.
	toAlice := spendGenesisTo(t, alice.upk)
	toBob := spendGenesisTo(t, bob.upk)

	carol := newParty(t)
	s, err := BuildSpend(alice.upk, []SignedSpend{*toAlice}, map[crypto.UniquePubkey]types.Amount{
		carol.upk: types.Amount(config.TotalSupply),
	})
	if err != nil {
		t.Fatalf("BuildSpend: %v", err)
	}
	signed, err := Sign(s, alice.dk)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	parents := parentsOf(Genesis())
	parents[toAlice.Address()] = []SignedSpend{*toAlice, *toBob}
	// toAlice and toBob live at the same address (same input key).
	if toAlice.Address() != toBob.Address() {
		t.Fatal("fixture broke: conflicting spends at different addresses")
	}
	if err := Validate(signed, parents); !errors.Is(err, ErrBurntAncestor) {
		t.Errorf("Validate with conflicting parent = %v, want ErrBurntAncestor", err)
	}
}

func TestValidate_IdenticalDuplicatesAreNotABurn(t *testing.T) {
	alice := newParty(t)
	first := spendGenesisTo(t, alice.upk)

	bob := newParty(t)
	s, err := BuildSpend(alice.upk, []SignedSpend{*first}, map[crypto.UniquePubkey]types.Amount{
		bob.upk: types.Amount(config.TotalSupply),
	})
	if err != nil {
		t.Fatalf("BuildSpend: %v", err)
	}
	signed, err := Sign(s, alice.dk)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	parents := parentsOf(Genesis())
	parents[first.Address()] = []SignedSpend{*first, *first, *first}
	if err := Validate(signed, parents); err != nil {
		t.Errorf("Validate with duplicated identical parent: %v", err)
	}
}

func TestValidate_TamperedAmount(t *testing.T) {
	alice := newParty(t)
	first := spendGenesisTo(t, alice.upk)

	tampered := *first
	tampered.Spend.Descendants = map[crypto.UniquePubkey]types.Amount{
		alice.upk: types.Amount(config.TotalSupply) - 1,
	}
	if err := Validate(&tampered, parentsOf(Genesis())); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Validate(tampered) = %v, want ErrInvalidSignature", err)
	}
}

func TestBuildSpend_Conservation(t *testing.T) {
	alice := newParty(t)
	first := spendGenesisTo(t, alice.upk)
	bob := newParty(t)

	_, err := BuildSpend(alice.upk, []SignedSpend{*first}, map[crypto.UniquePubkey]types.Amount{
		bob.upk: types.Amount(config.TotalSupply) - 5,
	})
	if !errors.Is(err, ErrConservation) {
		t.Errorf("under-allocation = %v, want ErrConservation", err)
	}

	_, err = BuildSpend(alice.upk, []SignedSpend{*first}, map[crypto.UniquePubkey]types.Amount{
		bob.upk: types.Amount(config.TotalSupply) + 5,
	})
	if !errors.Is(err, ErrConservation) {
		t.Errorf("over-allocation = %v, want ErrConservation", err)
	}
}

func TestBuildSpend_EmptyDescendants(t *testing.T) {
	alice := newParty(t)
	first := spendGenesisTo(t, alice.upk)
	_, err := BuildSpend(alice.upk, []SignedSpend{*first}, nil)
	if !errors.Is(err, ErrEmptyDescendants) {
		t.Errorf("BuildSpend(no descendants) = %v, want ErrEmptyDescendants", err)
	}
}

func TestBuildSpend_ZeroDescendant(t *testing.T) {
	alice := newParty(t)
	bob := newParty(t)
	first := spendGenesisTo(t, alice.upk)
	_, err := BuildSpend(alice.upk, []SignedSpend{*first}, map[crypto.UniquePubkey]types.Amount{
		alice.upk: types.Amount(config.TotalSupply),
		bob.upk:   0,
	})
	if !errors.Is(err, ErrZeroDescendant) {
		t.Errorf("BuildSpend(zero allocation) = %v, want ErrZeroDescendant", err)
	}
}

func TestBuildSpend_UnfundedKey(t *testing.T) {
	alice := newParty(t)
	stranger := newParty(t)
	first := spendGenesisTo(t, alice.upk)

	// The genesis chain funds alice, not the stranger.
	_, err := BuildSpend(stranger.upk, []SignedSpend{*first}, map[crypto.UniquePubkey]types.Amount{
		stranger.upk: types.Amount(config.TotalSupply),
	})
	if !errors.Is(err, ErrInvalidAncestry) {
		t.Errorf("BuildSpend(unfunded key) = %v, want ErrInvalidAncestry", err)
	}
}

func TestSigningBytes_Deterministic(t *testing.T) {
	alice := newParty(t)
	first := spendGenesisTo(t, alice.upk)

	want := first.Spend.SigningBytes()
	for i := 0; i < 16; i++ {
		if got := first.Spend.SigningBytes(); string(got) != string(want) {
			t.Fatalf("signing bytes changed between calls (iteration %d)", i)
		}
	}
}

func TestSignedSpend_JSONRoundTrip(t *testing.T) {
	alice := newParty(t)
	first := spendGenesisTo(t, alice.upk)

	data, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back SignedSpend
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(first) {
		t.Error("JSON round trip changed the record")
	}
	if err := back.Verify(); err != nil {
		t.Errorf("round-tripped record fails verification: %v", err)
	}
}

func TestCashNote_ForeignKey(t *testing.T) {
	alice := newParty(t)
	note := GenesisCashNote()
	if _, err := note.DerivedKey(alice.sk); !errors.Is(err, ErrForeignNote) {
		t.Errorf("DerivedKey(foreign) = %v, want ErrForeignNote", err)
	}
}

package meshnet

import (
	"testing"

	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

// genesisRecords returns the genesis spend encoded as a DHT value, plus
// its key.
func genesisRecords(t *testing.T) (string, []byte) {
	t.Helper()
	value, err := encodeRecords([]spend.SignedSpend{*spend.Genesis()})
	if err != nil {
		t.Fatalf("encodeRecords: %v", err)
	}
	return dhtKey(spend.GenesisAddress()), value
}

// conflictingGenesisSpend signs a second, distinct spend of the genesis
// note, producing burn evidence at the genesis note's address.
func conflictingGenesisSpend(t *testing.T) *spend.SignedSpend {
	t.Helper()
	gk := spend.GenesisKey()
	note := spend.GenesisCashNote()
	dk, err := note.DerivedKey(gk)
	if err != nil {
		t.Fatalf("DerivedKey: %v", err)
	}
	defer dk.Zero()

	idx, err := crypto.RandomDerivationIndex()
	if err != nil {
		t.Fatalf("RandomDerivationIndex: %v", err)
	}
	dest, err := gk.MainPubkey().DeriveUniquePubkey(idx)
	if err != nil {
		t.Fatalf("DeriveUniquePubkey: %v", err)
	}

	value, err := note.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	s, err := spend.BuildSpend(dk.UniquePubkey(), note.ParentSpends, map[crypto.UniquePubkey]types.Amount{dest: value})
	if err != nil {
		t.Fatalf("BuildSpend: %v", err)
	}
	ss, err := spend.Sign(s, dk)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return ss
}

func TestValidate_GoodRecord(t *testing.T) {
	key, value := genesisRecords(t)
	if err := (recordValidator{}).Validate(key, value); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_WrongAddress(t *testing.T) {
	_, value := genesisRecords(t)
	other := dhtKey(types.SpendAddress{1, 2, 3})
	if err := (recordValidator{}).Validate(other, value); err == nil {
		t.Error("Validate accepted record under foreign address")
	}
}

func TestValidate_BadSignature(t *testing.T) {
	forged := *spend.Genesis()
	forged.Signature = append([]byte(nil), forged.Signature...)
	forged.Signature[0] ^= 0xff
	value, err := encodeRecords([]spend.SignedSpend{forged})
	if err != nil {
		t.Fatalf("encodeRecords: %v", err)
	}
	if err := (recordValidator{}).Validate(dhtKey(spend.GenesisAddress()), value); err == nil {
		t.Error("Validate accepted forged signature")
	}
}

func TestValidate_Malformed(t *testing.T) {
	v := recordValidator{}
	key, value := genesisRecords(t)

	if err := v.Validate("/othernamespace/abcd", value); err == nil {
		t.Error("Validate accepted key outside namespace")
	}
	if err := v.Validate("/"+Namespace+"/nothex", value); err == nil {
		t.Error("Validate accepted non-hex address")
	}
	if err := v.Validate(key, []byte("not json")); err == nil {
		t.Error("Validate accepted malformed value")
	}
	if err := v.Validate(key, []byte("[]")); err == nil {
		t.Error("Validate accepted empty record set")
	}
}

func TestSelect_MostRecordsWins(t *testing.T) {
	// Two distinct spends of the genesis note, both at the note's
	// address. Random destination indices keep them distinct.
	s1 := conflictingGenesisSpend(t)
	s2 := conflictingGenesisSpend(t)
	key := dhtKey(s1.Address())

	short, err := encodeRecords([]spend.SignedSpend{*s1})
	if err != nil {
		t.Fatalf("encodeRecords: %v", err)
	}
	long, err := encodeRecords([]spend.SignedSpend{*s1, *s2})
	if err != nil {
		t.Fatalf("encodeRecords: %v", err)
	}

	got, err := recordValidator{}.Select(key, [][]byte{short, long})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != 1 {
		t.Errorf("Select = %d, want 1 (value with burn evidence)", got)
	}

	// Order must not matter.
	got, err = recordValidator{}.Select(key, [][]byte{long, short})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != 0 {
		t.Errorf("Select = %d, want 0", got)
	}
}

func TestSelect_DuplicatesDontCount(t *testing.T) {
	key, single := genesisRecords(t)
	padded, err := encodeRecords([]spend.SignedSpend{*spend.Genesis(), *spend.Genesis(), *spend.Genesis()})
	if err != nil {
		t.Fatalf("encodeRecords: %v", err)
	}

	// Three copies of one record are no better than one copy. The
	// first value with the best count wins.
	got, err := recordValidator{}.Select(key, [][]byte{single, padded})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != 0 {
		t.Errorf("Select = %d, want 0", got)
	}
}

func TestSelect_SkipsUndecodable(t *testing.T) {
	key, value := genesisRecords(t)
	got, err := recordValidator{}.Select(key, [][]byte{[]byte("garbage"), value})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != 1 {
		t.Errorf("Select = %d, want 1", got)
	}

	if _, err := (recordValidator{}).Select(key, [][]byte{[]byte("garbage")}); err == nil {
		t.Error("Select succeeded with no decodable values")
	}
}

func TestDHTKey_RoundTrip(t *testing.T) {
	addr := spend.GenesisAddress()
	got, err := addressFromKey(dhtKey(addr))
	if err != nil {
		t.Fatalf("addressFromKey: %v", err)
	}
	if got != addr {
		t.Errorf("addressFromKey = %s, want %s", got, addr)
	}
}

// Package spend defines the ledger entry of the meshcash network — the
// Spend record and its signature envelope — together with construction
// and validation rules. A Spend declares which keys funded a UniquePubkey
// (its ancestors) and where that value goes next (its descendants); the
// full ledger is the DAG these records form, rooted at the genesis spend.
package spend

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/types"
)

// Spend is an immutable ledger entry for one UniquePubkey. Once signed
// and uploaded it is never mutated or deleted; "spent" and "burnt" are
// derived states, never stored flags.
type Spend struct {
	// UniquePubkey is the single-use key this record spends.
	UniquePubkey crypto.UniquePubkey

	// Ancestors are the keys whose spends funded UniquePubkey. Sorted
	// and deduplicated; empty only for the genesis spend.
	Ancestors []crypto.UniquePubkey

	// Descendants allocates the full inherited value onward. The sum of
	// the map equals the sum contributed by the ancestors, always.
	Descendants map[crypto.UniquePubkey]types.Amount
}

// Address returns the content address this record must be stored at.
func (s *Spend) Address() types.SpendAddress {
	return s.UniquePubkey.SpendAddress()
}

// Amount returns the total value forwarded by this spend.
func (s *Spend) Amount() (types.Amount, error) {
	var total types.Amount
	var err error
	for _, v := range s.Descendants {
		if total, err = total.CheckedAdd(v); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// OutputAmount returns the value this spend allocates to target, and
// whether target is one of its descendants at all.
func (s *Spend) OutputAmount(target crypto.UniquePubkey) (types.Amount, bool) {
	v, ok := s.Descendants[target]
	return v, ok
}

// SigningBytes returns the canonical byte representation signed by the
// owner. Ancestors and descendants are serialized in bytewise key order
// so the encoding is independent of map iteration.
//
// Format: unique_pubkey(33) | "ancestors" | [pubkey(33)]... | "descendants" | [pubkey(33) + amount(8 LE)]...
func (s *Spend) SigningBytes() []byte {
	ancestors := sortedKeys(s.Ancestors)
	descendants := make([]crypto.UniquePubkey, 0, len(s.Descendants))
	for k := range s.Descendants {
		descendants = append(descendants, k)
	}
	descendants = sortedKeys(descendants)

	var buf []byte
	buf = append(buf, s.UniquePubkey[:]...)
	buf = append(buf, "ancestors"...)
	for _, a := range ancestors {
		buf = append(buf, a[:]...)
	}
	buf = append(buf, "descendants"...)
	for _, d := range descendants {
		buf = append(buf, d[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, s.Descendants[d].Nanos())
	}
	return buf
}

// Hash returns the BLAKE3 hash of the signing bytes.
func (s *Spend) Hash() types.Hash {
	return crypto.Hash(s.SigningBytes())
}

// sortedKeys returns a deduplicated copy of keys in bytewise order.
func sortedKeys(keys []crypto.UniquePubkey) []crypto.UniquePubkey {
	out := make([]crypto.UniquePubkey, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	dedup := out[:0]
	for i, k := range out {
		if i == 0 || k != out[i-1] {
			dedup = append(dedup, k)
		}
	}
	return dedup
}

// SignedSpend is a Spend plus the owner's signature. It is the unit
// stored on the network, at the Spend's address.
type SignedSpend struct {
	Spend     Spend
	Signature []byte
}

// Sign signs a spend with the DerivedSecretKey of its UniquePubkey.
func Sign(s *Spend, dk *crypto.DerivedSecretKey) (*SignedSpend, error) {
	sig, err := dk.Sign(s.SigningBytes())
	if err != nil {
		return nil, err
	}
	return &SignedSpend{Spend: *s, Signature: sig}, nil
}

// Address returns the content address this record must be stored at.
func (ss *SignedSpend) Address() types.SpendAddress {
	return ss.Spend.Address()
}

// Equal reports whether two signed spends are byte-identical. Records
// that differ in any way at one address constitute a burn.
func (ss *SignedSpend) Equal(other *SignedSpend) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(ss.Spend.SigningBytes(), other.Spend.SigningBytes()) &&
		bytes.Equal(ss.Signature, other.Signature)
}

// spendJSON is the stored representation. Descendants serialize as a
// sorted list so the encoding is stable.
type spendJSON struct {
	UniquePubkey crypto.UniquePubkey   `json:"unique_pubkey"`
	Ancestors    []crypto.UniquePubkey `json:"ancestors"`
	Descendants  []descendantJSON      `json:"descendants"`
}

type descendantJSON struct {
	UniquePubkey crypto.UniquePubkey `json:"unique_pubkey"`
	Amount       uint64              `json:"amount"`
}

// MarshalJSON encodes the spend with a sorted descendants list.
func (s Spend) MarshalJSON() ([]byte, error) {
	j := spendJSON{
		UniquePubkey: s.UniquePubkey,
		Ancestors:    sortedKeys(s.Ancestors),
	}
	keys := make([]crypto.UniquePubkey, 0, len(s.Descendants))
	for k := range s.Descendants {
		keys = append(keys, k)
	}
	for _, k := range sortedKeys(keys) {
		j.Descendants = append(j.Descendants, descendantJSON{UniquePubkey: k, Amount: s.Descendants[k].Nanos()})
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a spend from its stored representation.
func (s *Spend) UnmarshalJSON(data []byte) error {
	var j spendJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	s.UniquePubkey = j.UniquePubkey
	s.Ancestors = sortedKeys(j.Ancestors)
	s.Descendants = make(map[crypto.UniquePubkey]types.Amount, len(j.Descendants))
	for _, d := range j.Descendants {
		s.Descendants[d.UniquePubkey] = types.Amount(d.Amount)
	}
	return nil
}

// MarshalJSON encodes the signed spend with a hex signature.
func (ss SignedSpend) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Spend     Spend  `json:"spend"`
		Signature string `json:"signature"`
	}{Spend: ss.Spend, Signature: hex.EncodeToString(ss.Signature)})
}

// UnmarshalJSON decodes a signed spend.
func (ss *SignedSpend) UnmarshalJSON(data []byte) error {
	var j struct {
		Spend     Spend  `json:"spend"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return err
	}
	ss.Spend = j.Spend
	ss.Signature = sig
	return nil
}

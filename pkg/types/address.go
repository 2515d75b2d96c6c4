package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SpendAddressSize is the size of a spend address in bytes.
const SpendAddressSize = 32

// SpendAddress is the content address of a spend record on the network:
// the BLAKE3-256 hash of the UniquePubkey being spent. All records for a
// given key live at this one address, which is how conflicting spends of
// the same key become observable.
type SpendAddress [SpendAddressSize]byte

// String returns the hex encoding of the address.
func (a SpendAddress) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is all zeroes.
func (a SpendAddress) IsZero() bool {
	return a == SpendAddress{}
}

// ParseSpendAddress decodes a 64-character hex string into a SpendAddress.
func ParseSpendAddress(s string) (SpendAddress, error) {
	var a SpendAddress
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse spend address: %w", err)
	}
	if len(b) != SpendAddressSize {
		return a, fmt.Errorf("parse spend address: want %d bytes, got %d", SpendAddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// MarshalJSON encodes the address as a hex string.
func (a SpendAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex string into the address.
func (a *SpendAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSpendAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

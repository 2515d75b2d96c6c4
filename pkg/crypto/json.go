package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// JSON codecs for key material. Keys encode as hex strings so ledger
// records and wallet files stay human-inspectable.

// MarshalJSON encodes the key as a hex string.
func (mp MainPubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(mp.String())
}

// UnmarshalJSON decodes a hex string into the key.
func (mp *MainPubkey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMainPubkey(s)
	if err != nil {
		return err
	}
	*mp = parsed
	return nil
}

// MarshalJSON encodes the key as a hex string.
func (up UniquePubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(up.String())
}

// UnmarshalJSON decodes a hex string into the key.
func (up *UniquePubkey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseUniquePubkey(s)
	if err != nil {
		return err
	}
	*up = parsed
	return nil
}

// MarshalJSON encodes the index as a hex string. Derivation indexes are
// secrets: this codec exists for the wallet's own storage and for
// encrypted transfer payloads, never for plaintext records.
func (idx DerivationIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(idx[:]))
}

// UnmarshalJSON decodes a hex string into the index.
func (idx *DerivationIndex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("parse derivation index: %w", err)
	}
	if len(b) != DerivationIndexSize {
		return fmt.Errorf("parse derivation index: want %d bytes, got %d", DerivationIndexSize, len(b))
	}
	copy(idx[:], b)
	return nil
}

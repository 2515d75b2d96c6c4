package meshnet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	record "github.com/libp2p/go-libp2p-record"

	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

var _ record.Validator = recordValidator{}

// Namespace is the DHT key namespace for spend records. Full keys look
// like /meshcash/<spend address hex>.
const Namespace = "meshcash"

// recordValidator enforces the ledger's write rules on DHT records. A
// value is a JSON array of signed spends for one address; every record
// must carry a valid signature and live at the address derived from its
// own key. Selection keeps the value with the most distinct records so
// burn evidence always survives a conflict.
type recordValidator struct{}

// Validate checks a DHT record before it is stored or served.
func (recordValidator) Validate(key string, value []byte) error {
	addr, err := addressFromKey(key)
	if err != nil {
		return err
	}
	records, err := decodeRecords(value)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("empty record set for %s", addr)
	}
	for i := range records {
		ss := &records[i]
		if ss.Address() != addr {
			return fmt.Errorf("record for %s stored under %s", ss.Address(), addr)
		}
		if err := ss.Verify(); err != nil {
			return fmt.Errorf("record at %s: %w", addr, err)
		}
	}
	return nil
}

// Select picks among conflicting values. More distinct records wins:
// a double spend must never be masked by a shorter, cleaner value.
func (recordValidator) Select(key string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("no values for %s", key)
	}
	best, bestCount := 0, -1
	for i, v := range values {
		records, err := decodeRecords(v)
		if err != nil {
			continue
		}
		if n := len(dedupe(records)); n > bestCount {
			best, bestCount = i, n
		}
	}
	if bestCount < 0 {
		return 0, fmt.Errorf("no decodable values for %s", key)
	}
	return best, nil
}

// addressFromKey parses /meshcash/<hex> into a spend address.
func addressFromKey(key string) (types.SpendAddress, error) {
	var addr types.SpendAddress
	rest, ok := strings.CutPrefix(key, "/"+Namespace+"/")
	if !ok {
		return addr, fmt.Errorf("key %q outside /%s namespace", key, Namespace)
	}
	raw, err := hex.DecodeString(rest)
	if err != nil || len(raw) != len(addr) {
		return addr, fmt.Errorf("malformed address in key %q", key)
	}
	copy(addr[:], raw)
	return addr, nil
}

// dhtKey builds the DHT key for a spend address.
func dhtKey(addr types.SpendAddress) string {
	return "/" + Namespace + "/" + hex.EncodeToString(addr[:])
}

func decodeRecords(value []byte) ([]spend.SignedSpend, error) {
	var records []spend.SignedSpend
	if err := json.Unmarshal(value, &records); err != nil {
		return nil, fmt.Errorf("decode record set: %w", err)
	}
	return records, nil
}

func encodeRecords(records []spend.SignedSpend) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode record set: %w", err)
	}
	return data, nil
}

// dedupe drops byte-identical duplicates, preserving order.
func dedupe(records []spend.SignedSpend) []spend.SignedSpend {
	out := records[:0:0]
	for i := range records {
		dup := false
		for j := range out {
			if out[j].Equal(&records[i]) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, records[i])
		}
	}
	return out
}

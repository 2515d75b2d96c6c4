package spendstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meshcash/meshcash/internal/storage"
	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

// Local is a Store backed by a storage.DB. It serves as an offline
// record cache and as the auditor's input when working from a snapshot
// rather than the live network.
//
// Keys are "record/<address hex>/<record digest hex>", so every distinct
// record at one address gets its own slot and iteration by address
// prefix returns all of them.
type Local struct {
	db storage.DB
}

// NewLocal creates a Store over the given database.
func NewLocal(db storage.DB) *Local {
	return &Local{db: db}
}

func recordKey(addr types.SpendAddress, record *spend.SignedSpend) []byte {
	digest := crypto.Hash(append(record.Spend.SigningBytes(), record.Signature...))
	return []byte(fmt.Sprintf("record/%s/%s", addr, digest))
}

func addrPrefix(addr types.SpendAddress) []byte {
	return []byte(fmt.Sprintf("record/%s/", addr))
}

// Put stores a record. Byte-identical records map to the same key, so
// re-puts are naturally idempotent and differing records never collide.
func (l *Local) Put(_ context.Context, addr types.SpendAddress, record *spend.SignedSpend) error {
	key := recordKey(addr, record)
	exists, err := l.db.Has(key)
	if err != nil {
		return fmt.Errorf("spendstore put: %w", err)
	}
	if exists {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("spendstore put: %w", err)
	}
	return l.db.Put(key, data)
}

// Get returns all distinct records stored at an address.
func (l *Local) Get(_ context.Context, addr types.SpendAddress) ([]spend.SignedSpend, error) {
	var out []spend.SignedSpend
	err := l.db.ForEach(addrPrefix(addr), func(_, value []byte) error {
		var record spend.SignedSpend
		if err := json.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("corrupt record at %s: %w", addr, err)
		}
		out = append(out, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

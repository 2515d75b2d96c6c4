// Package spendstore defines the boundary to the network that holds
// spend records, plus local implementations of it. The contract is what
// makes burns detectable: a store never overwrites a differing record at
// an address — it retains every distinct record it has seen — and an
// identical re-put is a no-op.
package spendstore

import (
	"context"
	"errors"

	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

// ErrNotFound is returned by Get when no record exists at an address.
var ErrNotFound = errors.New("no spend record at address")

// Store is the storage collaborator consumed by the wallet and the DAG
// auditor. Implementations may be local (tests, caches) or remote (the
// DHT-backed network client).
type Store interface {
	// Put stores a record at an address. Identical re-puts are
	// idempotent; a differing record is retained alongside the prior
	// one, never dropped and never overwriting it.
	Put(ctx context.Context, addr types.SpendAddress, record *spend.SignedSpend) error

	// Get returns every distinct record observed at an address: zero
	// (ErrNotFound), one, or — for a burnt key — several.
	Get(ctx context.Context, addr types.SpendAddress) ([]spend.SignedSpend, error)
}

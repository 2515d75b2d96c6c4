package meshnet

import (
	"context"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/routing"

	"github.com/meshcash/meshcash/internal/spendstore"
	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

// Store exposes the DHT as a spendstore.Store. Writes are read-merge-
// write: the existing record set for the address is fetched, the new
// record unioned in, and the result published. The validator's Select
// rule makes concurrent writers converge on the larger set, so burn
// evidence survives races.
type Store struct {
	node *Node
}

var _ spendstore.Store = (*Store)(nil)

// NewStore wraps a started node.
func NewStore(node *Node) *Store {
	return &Store{node: node}
}

// Put publishes a record to the DHT, merged with whatever is already
// stored at its address. Identical re-puts are no-ops; a differing
// record for the same key is retained alongside the existing one.
func (s *Store) Put(ctx context.Context, addr types.SpendAddress, rec *spend.SignedSpend) error {
	if rec.Address() != addr {
		return fmt.Errorf("record for %s put at %s", rec.Address(), addr)
	}

	existing, err := s.Get(ctx, addr)
	if err != nil && !errors.Is(err, spendstore.ErrNotFound) {
		return err
	}
	for i := range existing {
		if existing[i].Equal(rec) {
			// Announce anyway so late subscribers hear about it.
			_ = s.node.Announce(ctx, addr)
			return nil
		}
	}
	merged := append(existing, *rec)

	value, err := encodeRecords(merged)
	if err != nil {
		return err
	}
	if err := s.node.dht.PutValue(ctx, dhtKey(addr), value); err != nil {
		return fmt.Errorf("put %s: %w", addr, err)
	}
	if err := s.node.Announce(ctx, addr); err != nil {
		s.node.logger.Warn().Stringer("address", addr).Err(err).Msg("spend announce failed")
	}
	return nil
}

// Get returns every record the DHT holds for the address.
func (s *Store) Get(ctx context.Context, addr types.SpendAddress) ([]spend.SignedSpend, error) {
	value, err := s.node.dht.GetValue(ctx, dhtKey(addr))
	if err != nil {
		if errors.Is(err, routing.ErrNotFound) {
			return nil, spendstore.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", addr, err)
	}
	records, err := decodeRecords(value)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", addr, err)
	}
	if len(records) == 0 {
		return nil, spendstore.ErrNotFound
	}
	return dedupe(records), nil
}

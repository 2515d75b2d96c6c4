package spendstore

import (
	"context"
	"sync"

	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

// Memory is an in-memory Store. It is the reference implementation of
// the retention contract and the fake used throughout the tests.
type Memory struct {
	mu      sync.RWMutex
	records map[types.SpendAddress][]spend.SignedSpend
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[types.SpendAddress][]spend.SignedSpend),
	}
}

// Put stores a record, deduplicating byte-identical re-puts.
func (m *Memory) Put(_ context.Context, addr types.SpendAddress, record *spend.SignedSpend) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records[addr] {
		if m.records[addr][i].Equal(record) {
			return nil
		}
	}
	m.records[addr] = append(m.records[addr], *record)
	return nil
}

// Get returns all distinct records at an address.
func (m *Memory) Get(_ context.Context, addr types.SpendAddress) ([]spend.SignedSpend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records, ok := m.records[addr]
	if !ok || len(records) == 0 {
		return nil, ErrNotFound
	}
	out := make([]spend.SignedSpend, len(records))
	copy(out, records)
	return out, nil
}

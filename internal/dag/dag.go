// Package dag builds and audits the ancestry graph of spend records.
// Starting from a target address it fetches records back to genesis
// through the storage collaborator and classifies every address it saw.
// The graph is held as address-keyed adjacency maps, not linked nodes,
// so merge-on-insert stays simple when the same address is reached via
// several descendant paths.
package dag

import (
	"errors"
	"fmt"
	"sync"

	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

// ErrCorruptDag is returned when an address appears twice on one
// ancestor path. The ledger is acyclic by construction; a cycle means a
// protocol violation, never something to skip over.
var ErrCorruptDag = errors.New("corrupt spend dag: ancestry cycle")

// Status classifies one audited address.
type Status int

const (
	// StatusUnknown is the zero value for addresses not yet classified.
	StatusUnknown Status = iota

	// StatusValid: exactly one record, fully validated, every ancestor
	// path terminates at genesis through valid spends.
	StatusValid

	// StatusBurnt: two or more distinct records exist for the key. The
	// key and everything descending from it are permanently unspendable.
	StatusBurnt

	// StatusIncomplete: the record or part of its ancestry could not be
	// fetched within the retry budget. Proof of neither safety nor burn.
	StatusIncomplete

	// StatusInvalid: a record exists but fails validation (bad
	// signature, broken conservation, bogus ancestry).
	StatusInvalid
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusBurnt:
		return "burnt"
	case StatusIncomplete:
		return "incomplete"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Dag is the audited ancestry graph of one target address.
type Dag struct {
	mu sync.Mutex

	target types.SpendAddress

	// records holds every distinct record observed per address.
	records map[types.SpendAddress][]spend.SignedSpend

	// ancestors is the adjacency map: address -> the addresses its
	// record(s) declare as ancestors.
	ancestors map[types.SpendAddress][]types.SpendAddress

	// missing records fetch failures that exhausted the retry budget.
	missing map[types.SpendAddress]error

	statuses map[types.SpendAddress]Status
}

func newDag(target types.SpendAddress) *Dag {
	return &Dag{
		target:    target,
		records:   make(map[types.SpendAddress][]spend.SignedSpend),
		ancestors: make(map[types.SpendAddress][]types.SpendAddress),
		missing:   make(map[types.SpendAddress]error),
		statuses:  make(map[types.SpendAddress]Status),
	}
}

// insert merges a record into the graph. Insert-if-absent: re-inserting
// an identical record is a no-op, a differing record is retained
// alongside the existing ones.
func (d *Dag) insert(addr types.SpendAddress, record *spend.SignedSpend) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.records[addr] {
		if d.records[addr][i].Equal(record) {
			return
		}
	}
	d.records[addr] = append(d.records[addr], *record)

	for _, anc := range record.Spend.Ancestors {
		ancAddr := anc.SpendAddress()
		seen := false
		for _, existing := range d.ancestors[addr] {
			if existing == ancAddr {
				seen = true
				break
			}
		}
		if !seen {
			d.ancestors[addr] = append(d.ancestors[addr], ancAddr)
		}
	}
}

// markMissing records that an address could not be fetched.
func (d *Dag) markMissing(addr types.SpendAddress, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.missing[addr] = err
}

// Target returns the address the audit started from.
func (d *Dag) Target() types.SpendAddress {
	return d.target
}

// Records returns the distinct records observed at an address.
func (d *Dag) Records(addr types.SpendAddress) []spend.SignedSpend {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]spend.SignedSpend, len(d.records[addr]))
	copy(out, d.records[addr])
	return out
}

// Status returns the classification of an address.
func (d *Dag) Status(addr types.SpendAddress) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statuses[addr]
}

// Statuses returns a copy of every classification in the graph.
func (d *Dag) Statuses() map[types.SpendAddress]Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[types.SpendAddress]Status, len(d.statuses))
	for k, v := range d.statuses {
		out[k] = v
	}
	return out
}

// Summary counts addresses per status.
func (d *Dag) Summary() map[Status]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[Status]int)
	for _, s := range d.statuses {
		out[s]++
	}
	return out
}

// classify walks the graph from the target, assigning every address a
// status. It detects ancestry cycles on the way: an address revisited
// while still on the current path aborts the whole audit.
func (d *Dag) classify() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	onPath := make(map[types.SpendAddress]bool)
	_, err := d.classifyNode(d.target, onPath)
	return err
}

func (d *Dag) classifyNode(addr types.SpendAddress, onPath map[types.SpendAddress]bool) (Status, error) {
	if s, done := d.statuses[addr]; done && s != StatusUnknown {
		return s, nil
	}
	if onPath[addr] {
		return StatusUnknown, fmt.Errorf("%w: %s revisited on its own ancestor path", ErrCorruptDag, addr)
	}
	onPath[addr] = true
	defer delete(onPath, addr)

	status, err := d.evaluate(addr, onPath)
	if err != nil {
		return StatusUnknown, err
	}
	d.statuses[addr] = status
	return status, nil
}

func (d *Dag) evaluate(addr types.SpendAddress, onPath map[types.SpendAddress]bool) (Status, error) {
	if addr == spend.GenesisAddress() {
		return StatusValid, nil
	}
	if _, failed := d.missing[addr]; failed {
		return StatusIncomplete, nil
	}
	records := d.records[addr]
	if len(records) == 0 {
		return StatusIncomplete, nil
	}

	// A record lives at the address derived from its own key. One found
	// anywhere else is a forgery of placement: it invalidates the address
	// it was planted at and never counts as burn evidence there. Without
	// this check a copy of a record stored under an alias address would
	// audit clean while the real address carries a burn.
	for i := range records {
		if records[i].Address() != addr {
			return StatusInvalid, nil
		}
	}

	if len(records) > 1 {
		return StatusBurnt, nil
	}

	// Ancestor statuses first: a burn anywhere upstream poisons this
	// address no matter what its own record looks like.
	worst := StatusValid
	for _, ancAddr := range d.ancestors[addr] {
		ancStatus, err := d.classifyNode(ancAddr, onPath)
		if err != nil {
			return StatusUnknown, err
		}
		switch ancStatus {
		case StatusBurnt:
			return StatusBurnt, nil
		case StatusInvalid:
			worst = StatusInvalid
		case StatusIncomplete:
			if worst == StatusValid {
				worst = StatusIncomplete
			}
		}
	}
	if worst != StatusValid {
		return worst, nil
	}

	parents := make(map[types.SpendAddress][]spend.SignedSpend, len(d.ancestors[addr]))
	for _, ancAddr := range d.ancestors[addr] {
		parents[ancAddr] = d.records[ancAddr]
	}
	if err := spend.Validate(&records[0], parents); err != nil {
		return StatusInvalid, nil
	}
	return StatusValid, nil
}

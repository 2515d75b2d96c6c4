package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

// Note selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoSpendableNotes  = errors.New("no spendable notes")
)

// noteCandidate pairs a cash note with its verified value.
type noteCandidate struct {
	Note  spend.CashNote
	Value types.Amount
}

// NoteSelection holds the result of note selection.
type NoteSelection struct {
	Notes  []noteCandidate // Selected notes to spend, each entirely consumed.
	Total  types.Amount    // Sum of selected note values.
	Change types.Amount    // Change = Total - target.
}

// selectNotes chooses cash notes to fund a payment of the given target amount.
// Unlike partial-spend ledgers, a note is always consumed whole, so selection
// only controls how much change flows back to the wallet. It tries two
// strategies:
//  1. Single note: the smallest single note that covers the target.
//  2. Largest-first accumulation: greedily adds the largest notes until the
//     target is met.
//
// Returns the strategy that produces the least change.
func selectNotes(notes []noteCandidate, target types.Amount) (*NoteSelection, error) {
	if len(notes) == 0 {
		return nil, ErrNoSpendableNotes
	}
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]noteCandidate, 0, len(notes))
	for _, n := range notes {
		if n.Value > 0 {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoSpendableNotes
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Value < candidates[j].Value
	})

	// Strategy 1: single note, smallest one that covers the target.
	var single *NoteSelection
	for _, n := range candidates {
		if n.Value >= target {
			single = &NoteSelection{
				Notes:  []noteCandidate{n},
				Total:  n.Value,
				Change: n.Value - target,
			}
			break // Sorted ascending, first match is smallest.
		}
	}

	// Strategy 2: largest-first accumulation.
	var accum *NoteSelection
	var selected []noteCandidate
	var total types.Amount
	for i := len(candidates) - 1; i >= 0; i-- {
		sum, err := total.CheckedAdd(candidates[i].Value)
		if err != nil {
			return nil, fmt.Errorf("select notes: %w", err)
		}
		selected = append(selected, candidates[i])
		total = sum
		if total >= target {
			accum = &NoteSelection{
				Notes:  selected,
				Total:  total,
				Change: total - target,
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		// Prefer whichever produces less change.
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, total, target)
	}
}

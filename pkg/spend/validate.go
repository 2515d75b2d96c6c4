package spend

import (
	"errors"
	"fmt"

	"github.com/meshcash/meshcash/pkg/types"
)

// Validation errors. Structural failures are permanent: retrying a
// malformed record cannot fix it.
var (
	ErrInvalidSignature = errors.New("invalid spend signature")
	ErrAddressMismatch  = errors.New("record does not belong at this address")
	ErrMissingAncestor  = errors.New("ancestor record not supplied")
	ErrBurntAncestor    = errors.New("conflicting records at ancestor address")
)

// Verify checks the signature envelope: the Spend must be signed by the
// DerivedSecretKey of its own UniquePubkey. It does not look at
// ancestors; that is Validate's job.
func (ss *SignedSpend) Verify() error {
	if !ss.Spend.UniquePubkey.Verify(ss.Signature, ss.Spend.SigningBytes()) {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, ss.Spend.UniquePubkey)
	}
	return nil
}

// Validate is the pure, stateless check of one signed spend against the
// records observed at its ancestors' addresses. The caller (wallet or
// DAG auditor) supplies everything; no I/O happens here.
//
// parents maps each ancestor SpendAddress to every record fetched for it.
// More than one distinct record at an address is a burn — a permanent,
// non-retryable condition. Deeper ancestry is the caller's concern: the
// auditor validates every node it crawls, so one level here suffices.
func Validate(ss *SignedSpend, parents map[types.SpendAddress][]SignedSpend) error {
	if IsGenesis(ss) {
		if !ss.Equal(Genesis()) {
			return fmt.Errorf("%w: forged genesis record", ErrInvalidSignature)
		}
		return nil
	}

	if err := ss.Verify(); err != nil {
		return err
	}
	if len(ss.Spend.Descendants) == 0 {
		return ErrEmptyDescendants
	}
	for k, v := range ss.Spend.Descendants {
		if v == 0 {
			return fmt.Errorf("%w: descendant %s", ErrZeroDescendant, k)
		}
	}
	if len(ss.Spend.Ancestors) == 0 {
		// Only genesis may have no ancestors.
		return fmt.Errorf("%w: non-genesis spend with empty ancestor set", ErrMissingAncestor)
	}

	unique := ss.Spend.UniquePubkey
	var inherited types.Amount
	for _, ancestor := range ss.Spend.Ancestors {
		addr := ancestor.SpendAddress()
		records := dedupeRecords(parents[addr])
		if len(records) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingAncestor, addr)
		}
		if len(records) > 1 {
			return fmt.Errorf("%w: %s (%d records)", ErrBurntAncestor, addr, len(records))
		}

		parent := &records[0]
		if parent.Spend.UniquePubkey != ancestor {
			return fmt.Errorf("%w: record for %s found at %s", ErrAddressMismatch, parent.Spend.UniquePubkey, addr)
		}
		if err := parent.Verify(); err != nil {
			return fmt.Errorf("ancestor %s: %w", addr, err)
		}

		v, ok := parent.Spend.OutputAmount(unique)
		if !ok || v == 0 {
			return fmt.Errorf("%w: ancestor %s does not allocate to %s", ErrInvalidAncestry, ancestor, unique)
		}
		sum, err := inherited.CheckedAdd(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConservation, err)
		}
		inherited = sum
	}

	forwarded, err := ss.Spend.Amount()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConservation, err)
	}
	if forwarded != inherited {
		return fmt.Errorf("%w: inherited %s, forwarded %s", ErrConservation, inherited, forwarded)
	}
	return nil
}

// dedupeRecords drops byte-identical duplicates. Identical re-uploads of
// the same record are legitimate; only distinct records mean a burn.
func dedupeRecords(records []SignedSpend) []SignedSpend {
	var out []SignedSpend
	for i := range records {
		dup := false
		for j := range out {
			if records[i].Equal(&out[j]) {
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

package spend

import (
	"errors"
	"fmt"

	"github.com/meshcash/meshcash/config"
	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/types"
)

// Construction errors. All are local, pre-upload and never retryable.
var (
	ErrEmptyDescendants = errors.New("spend has no descendants")
	ErrZeroDescendant   = errors.New("descendant allocation is zero")
	ErrConservation     = errors.New("conservation violation")
	ErrInvalidAncestry  = errors.New("ancestor does not fund this key")
	ErrTooManyOutputs   = errors.New("too many descendants")
)

// BuildSpend constructs the Spend for uniquePubkey. The ancestors are
// the signed spends that allocated value to uniquePubkey; descendants is
// the full onward allocation. The inherited value is recomputed from the
// ancestors' own descendant maps and must equal the allocated total
// exactly: there is no implicit burn of change.
func BuildSpend(
	uniquePubkey crypto.UniquePubkey,
	ancestors []SignedSpend,
	descendants map[crypto.UniquePubkey]types.Amount,
) (*Spend, error) {
	if len(descendants) == 0 {
		return nil, ErrEmptyDescendants
	}
	if len(descendants) > config.MaxSpendOutputs {
		return nil, fmt.Errorf("%w: %d, max %d", ErrTooManyOutputs, len(descendants), config.MaxSpendOutputs)
	}

	var inherited types.Amount
	ancestorKeys := make([]crypto.UniquePubkey, 0, len(ancestors))
	for i := range ancestors {
		a := &ancestors[i]
		v, ok := a.Spend.OutputAmount(uniquePubkey)
		if !ok || v == 0 {
			return nil, fmt.Errorf("%w: ancestor %s", ErrInvalidAncestry, a.Spend.UniquePubkey)
		}
		sum, err := inherited.CheckedAdd(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConservation, err)
		}
		inherited = sum
		ancestorKeys = append(ancestorKeys, a.Spend.UniquePubkey)
	}

	var allocated types.Amount
	for k, v := range descendants {
		if v == 0 {
			return nil, fmt.Errorf("%w: descendant %s", ErrZeroDescendant, k)
		}
		sum, err := allocated.CheckedAdd(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConservation, err)
		}
		allocated = sum
	}

	if allocated != inherited {
		return nil, fmt.Errorf("%w: inherited %s, allocated %s", ErrConservation, inherited, allocated)
	}

	out := make(map[crypto.UniquePubkey]types.Amount, len(descendants))
	for k, v := range descendants {
		out[k] = v
	}
	return &Spend{
		UniquePubkey: uniquePubkey,
		Ancestors:    sortedKeys(ancestorKeys),
		Descendants:  out,
	}, nil
}

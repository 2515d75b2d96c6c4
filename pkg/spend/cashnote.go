package spend

import (
	"errors"
	"fmt"

	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/types"
)

// ErrForeignNote is returned when a secret key cannot unlock a note.
var ErrForeignNote = errors.New("cash note does not belong to this key")

// CashNote is a wallet-local bundle describing one spendable, not yet
// spent UniquePubkey: the owner's main key, the derivation index that
// produces the single-use pair, and the parent spends that fund it. It
// never appears on the network in this form.
type CashNote struct {
	MainPubkey      crypto.MainPubkey      `json:"main_pubkey"`
	DerivationIndex crypto.DerivationIndex `json:"derivation_index"`
	ParentSpends    []SignedSpend          `json:"parent_spends"`
}

// UniquePubkey derives the single-use key this note controls.
func (c *CashNote) UniquePubkey() (crypto.UniquePubkey, error) {
	return c.MainPubkey.DeriveUniquePubkey(c.DerivationIndex)
}

// Address returns the spend address of the note's key.
func (c *CashNote) Address() (types.SpendAddress, error) {
	up, err := c.UniquePubkey()
	if err != nil {
		return types.SpendAddress{}, err
	}
	return up.SpendAddress(), nil
}

// Value sums what the parent spends allocate to this note's key. A note
// none of whose parents fund it is worthless and reported as an error.
func (c *CashNote) Value() (types.Amount, error) {
	up, err := c.UniquePubkey()
	if err != nil {
		return 0, err
	}
	var total types.Amount
	funded := false
	for i := range c.ParentSpends {
		if v, ok := c.ParentSpends[i].Spend.OutputAmount(up); ok {
			sum, err := total.CheckedAdd(v)
			if err != nil {
				return 0, err
			}
			total = sum
			funded = true
		}
	}
	if !funded {
		return 0, fmt.Errorf("cash note %s: no parent spend funds it", up)
	}
	return total, nil
}

// ParentAddresses returns the spend addresses of the funding spends.
func (c *CashNote) ParentAddresses() []types.SpendAddress {
	addrs := make([]types.SpendAddress, 0, len(c.ParentSpends))
	for i := range c.ParentSpends {
		addrs = append(addrs, c.ParentSpends[i].Address())
	}
	return addrs
}

// DerivedKey unlocks the note with the owner's main secret key. Fails
// with ErrForeignNote if the key's identity does not match the note.
func (c *CashNote) DerivedKey(sk *crypto.MainSecretKey) (*crypto.DerivedSecretKey, error) {
	if sk.MainPubkey() != c.MainPubkey {
		return nil, ErrForeignNote
	}
	return sk.DeriveKey(c.DerivationIndex)
}

package types

import (
	"fmt"
	"math"
)

// Amount is a token quantity in nano units. 1 coin = 10^9 nanos.
type Amount uint64

// Nanos returns the raw nano-unit value.
func (a Amount) Nanos() uint64 {
	return uint64(a)
}

// CheckedAdd returns a+b, or an error if the sum overflows uint64.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	if uint64(a) > math.MaxUint64-uint64(b) {
		return 0, fmt.Errorf("amount overflow: %d + %d", a, b)
	}
	return a + b, nil
}

// String formats the amount as "<coins>.<nanos>".
func (a Amount) String() string {
	return fmt.Sprintf("%d.%09d", uint64(a)/1_000_000_000, uint64(a)%1_000_000_000)
}

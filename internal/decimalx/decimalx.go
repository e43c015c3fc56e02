// Package decimalx carries the small set of decimal helpers the matching
// core needs on top of shopspring/decimal: a subtraction that refuses to
// produce a negative remainder (spec.md §4.3 "any negative is a bug
// triggering an assertion") and tick/lot conformance checks (spec.md §9's
// open question on rounding policy).
package decimalx

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNegativeResult is returned by SubNonNegative when a subtraction would
// produce a negative value. The caller is expected to treat this as an
// internal invariant violation, not a user-facing error.
type ErrNegativeResult struct {
	Minuend    decimal.Decimal
	Subtrahend decimal.Decimal
}

func (e ErrNegativeResult) Error() string {
	return fmt.Sprintf("decimalx: %s - %s would be negative", e.Minuend, e.Subtrahend)
}

// SubNonNegative returns a-b, or an error if the result would be negative.
// The matching loop relies on this to catch bugs (double-decrementing a
// maker, an inverted min()) before they manifest as a corrupted book.
func SubNonNegative(a, b decimal.Decimal) (decimal.Decimal, error) {
	result := a.Sub(b)
	if result.IsNegative() {
		return result, ErrNegativeResult{Minuend: a, Subtrahend: b}
	}
	return result, nil
}

// ConformsToTick reports whether price is an exact multiple of tick. A zero
// tick disables the check (symbol has no tick-size restriction).
func ConformsToTick(price, tick decimal.Decimal) bool {
	if tick.IsZero() {
		return true
	}
	return price.Mod(tick).IsZero()
}

// ConformsToLot reports whether quantity is an exact multiple of lot. A zero
// lot disables the check.
func ConformsToLot(quantity, lot decimal.Decimal) bool {
	if lot.IsZero() {
		return true
	}
	return quantity.Mod(lot).IsZero()
}

// Package errs holds the error taxonomy of spec.md §7: callers match against
// these sentinels with errors.Is, and transports translate them to whatever
// status codes their protocol uses.
package errs

import "errors"

var (
	// ErrInvalidOrder is a field-level validation failure: non-positive
	// quantity, a missing price for a priced type, a price on a market
	// order, or a price/quantity that does not conform to the symbol's
	// tick/lot size.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrNotFound is returned when a cancel target does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrAlreadyTerminal is returned when a cancel target is already filled
	// or previously cancelled.
	ErrAlreadyTerminal = errors.New("order already terminal")

	// ErrRejected marks a fill-or-kill submission that was accepted and
	// immediately cancelled for infeasibility, distinguishable from a
	// user-initiated cancel (spec.md §6, §7).
	ErrRejected = errors.New("order rejected")

	// ErrInternal marks an invariant violation (crossed book, negative
	// remaining quantity). It is fatal: the affected symbol is poisoned and
	// must reject further submissions until an operator intervenes.
	ErrInternal = errors.New("internal invariant violation")
)

package book

import (
	"fenrir/internal/common"

	"github.com/shopspring/decimal"
)

// PriceLevel is the FIFO queue of resting order fragments at one exact price
// on one side (spec.md §4.1). Insertion order equals FIFO match order.
type PriceLevel struct {
	Price  decimal.Decimal
	Side   common.Side
	Orders []*common.RestingOrder
}

// Push appends a resting order to the tail of the level.
func (l *PriceLevel) Push(order *common.RestingOrder) {
	l.Orders = append(l.Orders, order)
}

// Peek returns the head of the level without removing it.
func (l *PriceLevel) Peek() (*common.RestingOrder, bool) {
	if len(l.Orders) == 0 {
		return nil, false
	}
	return l.Orders[0], true
}

// PopHead removes the head of the level. Used once its quantity reaches
// zero; a zero-remaining maker is never left at the head (spec.md §4.3).
func (l *PriceLevel) PopHead() {
	if len(l.Orders) == 0 {
		return
	}
	l.Orders[0] = nil
	l.Orders = l.Orders[1:]
}

// Remove deletes the order with the given id from anywhere in the level,
// preserving FIFO order of the remainder. O(k) in level depth (spec.md
// §4.1: "tolerable because cancellations of deep orders are rare").
func (l *PriceLevel) Remove(id string) (*common.RestingOrder, bool) {
	for i, o := range l.Orders {
		if o.ID == id {
			removed := o
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			return removed, true
		}
	}
	return nil, false
}

// TotalQty sums remaining quantity across every order at this level.
func (l *PriceLevel) TotalQty() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.Orders {
		total = total.Add(o.Quantity)
	}
	return total
}

// Empty reports whether the level currently holds no liquidity; empty
// levels must be removed eagerly from the book (spec.md §4.2).
func (l *PriceLevel) Empty() bool {
	return len(l.Orders) == 0
}

package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is the inbound, already-authenticated submission (spec.md §6
// Submit contract). Price is nil for market orders and required otherwise.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Type     OrderType
	Quantity decimal.Decimal
	Price    *decimal.Decimal
	Owner    string
}

// RestingOrder is the engine's internal representation of an order once it
// has been assigned an identifier, covering both the in-flight taker and any
// residual that ends up resting on the book (spec.md §3 "RestingOrder").
type RestingOrder struct {
	ID            string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         decimal.Decimal // zero for market orders
	Quantity      decimal.Decimal // remaining
	TotalQuantity decimal.Decimal
	Owner         string
	Sequence      uint64 // monotonic within a price level, used for FIFO
	Timestamp     time.Time
	ExchTimestamp time.Time
	Status        Status
}

func (order *RestingOrder) String() string {
	return fmt.Sprintf(
		`ID:             %s
Symbol:         %s
Side:           %v
Type:           %v
Price:          %s
Quantity:       %s (Total: %s)
Owner:          %s
Timestamp:      %v
ExchTimestamp:  %v
Status:         %v`,
		order.ID,
		order.Symbol,
		order.Side,
		order.Type,
		order.Price,
		order.Quantity,
		order.TotalQuantity,
		order.Owner,
		order.Timestamp.Format(time.RFC3339),
		order.ExchTimestamp.Format(time.RFC3339),
		order.Status,
	)
}

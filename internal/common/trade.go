package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable execution record once matched (spec.md §3 "Trade").
// Identifiers are the "TRADE-<uuid>" / "ORDER-<uuid>" form required by §6.
type Trade struct {
	ID            string
	Symbol        string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	MakerOrderID  string
	TakerOrderID  string
	AggressorSide Side
	Timestamp     time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`ID:            %s
Symbol:        %s
Price:         %s
Quantity:      %s
MakerOrderID:  %s
TakerOrderID:  %s
AggressorSide: %v
Timestamp:     %v`,
		t.ID,
		t.Symbol,
		t.Price,
		t.Quantity,
		t.MakerOrderID,
		t.TakerOrderID,
		t.AggressorSide,
		t.Timestamp.Format(time.RFC3339),
	)
}

// SubmissionResult is the response to a Submit or Cancel call (spec.md §6).
type SubmissionResult struct {
	OrderID string
	Trades  []Trade
	Status  Status
}

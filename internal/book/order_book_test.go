package book

import (
	"testing"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restingOrder(id string, side common.Side, price, qty string) *common.RestingOrder {
	p := decimal.RequireFromString(price)
	q := decimal.RequireFromString(qty)
	return &common.RestingOrder{
		ID:            id,
		Symbol:        "AAPL",
		Side:          side,
		Type:          common.LimitOrder,
		Price:         p,
		Quantity:      q,
		TotalQuantity: q,
		Status:        common.StatusOpen,
	}
}

func levelQuantities(level *PriceLevel) []string {
	qtys := make([]string, len(level.Orders))
	for i, o := range level.Orders {
		qtys[i] = o.Quantity.String()
	}
	return qtys
}

func TestInsertResting_OrdersByPriceThenFIFO(t *testing.T) {
	b := NewOrderBook("AAPL")

	b.InsertResting(restingOrder("b1", common.Buy, "99", "100"))
	b.InsertResting(restingOrder("b2", common.Buy, "99", "90"))
	b.InsertResting(restingOrder("b3", common.Buy, "98", "50"))

	bids := b.Items(common.Buy)
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Price.Equal(decimal.RequireFromString("99")))
	assert.Equal(t, []string{"100", "90"}, levelQuantities(bids[0]))
	assert.True(t, bids[1].Price.Equal(decimal.RequireFromString("98")))
}

func TestBestBidAsk(t *testing.T) {
	b := NewOrderBook("AAPL")
	b.InsertResting(restingOrder("b1", common.Buy, "99", "10"))
	b.InsertResting(restingOrder("b2", common.Buy, "100", "10"))
	b.InsertResting(restingOrder("a1", common.Sell, "105", "10"))
	b.InsertResting(restingOrder("a2", common.Sell, "101", "10"))

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Price.Equal(decimal.RequireFromString("100")))

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Price.Equal(decimal.RequireFromString("101")))

	assert.False(t, b.Crossed())
}

func TestCancel_RemovesOrderAndEmptyLevel(t *testing.T) {
	b := NewOrderBook("AAPL")
	b.InsertResting(restingOrder("b1", common.Buy, "99", "10"))

	removed, err := b.Cancel("b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", removed.ID)
	assert.Empty(t, b.Items(common.Buy))

	_, err = b.Cancel("b1")
	assert.ErrorIs(t, err, ErrLevelNotFound)
}

func TestMarketableDepth_SumsOnlyCrossableLevels(t *testing.T) {
	b := NewOrderBook("AAPL")
	b.InsertResting(restingOrder("a1", common.Sell, "100", "10"))
	b.InsertResting(restingOrder("a2", common.Sell, "101", "20"))
	b.InsertResting(restingOrder("a3", common.Sell, "102", "30"))

	limit := decimal.RequireFromString("101")
	depth := b.MarketableDepth(common.Buy, &limit)
	assert.True(t, depth.Equal(decimal.RequireFromString("30")), "expected 10+20=30, got %s", depth)

	full := b.MarketableDepth(common.Buy, nil)
	assert.True(t, full.Equal(decimal.RequireFromString("60")))
}

func TestRemoveIfEmpty_AndDeleteLocation(t *testing.T) {
	b := NewOrderBook("AAPL")
	order := restingOrder("a1", common.Sell, "100", "10")
	b.InsertResting(order)

	level, ok := b.BestAsk()
	require.True(t, ok)
	level.PopHead()
	b.DeleteLocation("a1")
	b.RemoveIfEmpty(level)

	assert.Empty(t, b.Items(common.Sell))
	_, err := b.Cancel("a1")
	assert.ErrorIs(t, err, ErrLevelNotFound)
}

package engine

import (
	"testing"

	"fenrir/internal/common"
	"fenrir/internal/errs"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex/fakeSink/fakePublisher are minimal stand-ins for the interfaces
// Engine depends on, recording calls for assertions.
type fakeIndex struct {
	set    map[string]string
	delete []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{set: make(map[string]string)}
}

func (f *fakeIndex) Set(orderID, symbol string) { f.set[orderID] = symbol }
func (f *fakeIndex) Delete(orderID string) {
	delete(f.set, orderID)
	f.delete = append(f.delete, orderID)
}

type fakePublisher struct {
	trades []common.Trade
}

func (f *fakePublisher) Publish(trade common.Trade) { f.trades = append(f.trades, trade) }

type fakeSink struct{}

func (fakeSink) RecordOrder(*common.RestingOrder)  {}
func (fakeSink) RecordStatus(*common.RestingOrder) {}
func (fakeSink) RecordTrade(common.Trade)          {}

func newTestEngine() (*Engine, *fakePublisher) {
	pub := &fakePublisher{}
	e := New("AAPL", newFakeIndex(), pub, fakeSink{}, Config{})
	return e, pub
}

func limitReq(side common.Side, price, qty string) common.OrderRequest {
	p := decimal.RequireFromString(price)
	return common.OrderRequest{
		Symbol:   "AAPL",
		Side:     side,
		Type:     common.LimitOrder,
		Price:    &p,
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestSubmit_RestsWhenBookEmpty(t *testing.T) {
	e, _ := newTestEngine()

	result, err := e.Submit(limitReq(common.Buy, "100", "10"))
	require.NoError(t, err)
	assert.Equal(t, common.StatusOpen, result.Status)
	assert.Empty(t, result.Trades)

	bid, ok := e.Book().BestBid()
	require.True(t, ok)
	assert.True(t, bid.Price.Equal(decimal.RequireFromString("100")))
}

func TestSubmit_PriceTimePriority(t *testing.T) {
	e, pub := newTestEngine()

	_, err := e.Submit(limitReq(common.Sell, "100", "10"))
	require.NoError(t, err)
	_, err = e.Submit(limitReq(common.Sell, "100", "5"))
	require.NoError(t, err)

	result, err := e.Submit(limitReq(common.Buy, "100", "12"))
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.True(t, result.Trades[0].Quantity.Equal(decimal.RequireFromString("10")), "first fill should exhaust the earlier resting order first")
	assert.True(t, result.Trades[1].Quantity.Equal(decimal.RequireFromString("2")))
	assert.Len(t, pub.trades, 2)
}

func TestSubmit_PriceImprovementAccruesToTaker(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.Submit(limitReq(common.Sell, "99", "10"))
	require.NoError(t, err)

	result, err := e.Submit(limitReq(common.Buy, "105", "10"))
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(decimal.RequireFromString("99")), "trade must clear at the resting maker's price, not the taker's limit")
}

func TestSubmit_IOC_PartialFillCancelsResidual(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.Submit(limitReq(common.Sell, "100", "5"))
	require.NoError(t, err)

	req := limitReq(common.Buy, "100", "10")
	req.Type = common.IOCOrder
	result, err := e.Submit(req)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, common.StatusCancelled, result.Status, "IOC residual must cancel, never rest")

	_, ok := e.Book().BestBid()
	assert.False(t, ok, "IOC residual must not appear in the book")
}

func TestSubmit_FOK_RejectedWhenInsufficientDepth(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.Submit(limitReq(common.Sell, "100", "5"))
	require.NoError(t, err)

	req := limitReq(common.Buy, "100", "10")
	req.Type = common.FOKOrder
	result, err := e.Submit(req)
	require.ErrorIs(t, err, errs.ErrRejected)
	assert.Equal(t, common.StatusCancelled, result.Status)
	assert.Empty(t, result.Trades)

	ask, ok := e.Book().BestAsk()
	require.True(t, ok)
	assert.True(t, ask.TotalQty().Equal(decimal.RequireFromString("5")), "a rejected FOK must not touch resting liquidity")
}

func TestSubmit_FOK_FillsAcrossMultipleLevels(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.Submit(limitReq(common.Sell, "100", "5"))
	require.NoError(t, err)
	_, err = e.Submit(limitReq(common.Sell, "101", "10"))
	require.NoError(t, err)

	req := limitReq(common.Buy, "101", "12")
	req.Type = common.FOKOrder
	result, err := e.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, common.StatusFilled, result.Status)
	require.Len(t, result.Trades, 2)
}

func TestCancel_RestingOrder(t *testing.T) {
	e, _ := newTestEngine()

	result, err := e.Submit(limitReq(common.Buy, "100", "10"))
	require.NoError(t, err)

	cancelResult, err := e.Cancel(result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, cancelResult.Status)

	_, ok := e.Book().BestBid()
	assert.False(t, ok)
}

func TestCancel_AlreadyTerminalIsRejected(t *testing.T) {
	e, _ := newTestEngine()

	result, err := e.Submit(limitReq(common.Buy, "100", "10"))
	require.NoError(t, err)

	_, err = e.Cancel(result.OrderID)
	require.NoError(t, err)

	_, err = e.Cancel(result.OrderID)
	assert.Error(t, err)
}

func TestCancel_UnknownOrderNotFound(t *testing.T) {
	e, _ := newTestEngine()
	_, err := e.Cancel("ORDER-does-not-exist")
	assert.Error(t, err)
}

func TestSubmit_MarketOrderWithResidualNeverRests(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.Submit(limitReq(common.Sell, "100", "5"))
	require.NoError(t, err)

	req := common.OrderRequest{
		Symbol:   "AAPL",
		Side:     common.Buy,
		Type:     common.MarketOrder,
		Quantity: decimal.RequireFromString("10"),
	}
	result, err := e.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, result.Status, "a partially-filled market order's residual must cancel, not rest at the last match price")

	_, ok := e.Book().BestBid()
	assert.False(t, ok)
}

func TestSubmit_RejectsMarketOrderWithPrice(t *testing.T) {
	e, _ := newTestEngine()
	price := decimal.RequireFromString("100")
	req := common.OrderRequest{
		Symbol:   "AAPL",
		Side:     common.Buy,
		Type:     common.MarketOrder,
		Price:    &price,
		Quantity: decimal.RequireFromString("10"),
	}
	_, err := e.Submit(req)
	assert.Error(t, err)
}

func TestSubmit_RejectsFOKWithoutPrice(t *testing.T) {
	e, _ := newTestEngine()
	req := common.OrderRequest{
		Symbol:   "AAPL",
		Side:     common.Buy,
		Type:     common.FOKOrder,
		Quantity: decimal.RequireFromString("10"),
	}
	_, err := e.Submit(req)
	assert.Error(t, err)
}

func TestSubmit_EnforcesTickAndLot(t *testing.T) {
	pub := &fakePublisher{}
	cfg := Config{Tick: decimal.RequireFromString("0.5"), Lot: decimal.RequireFromString("1")}
	e := New("AAPL", newFakeIndex(), pub, fakeSink{}, cfg)

	_, err := e.Submit(limitReq(common.Buy, "100.25", "10"))
	assert.Error(t, err, "price must conform to tick size")

	_, err = e.Submit(limitReq(common.Buy, "100.5", "10.5"))
	assert.Error(t, err, "quantity must conform to lot size")

	_, err = e.Submit(limitReq(common.Buy, "100.5", "10"))
	assert.NoError(t, err)
}

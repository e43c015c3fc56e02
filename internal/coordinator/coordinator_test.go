package coordinator

import (
	"context"
	"testing"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/errs"
	"fenrir/internal/index"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

type fakePublisher struct{}

func (fakePublisher) Publish(common.Trade) {}

type fakeSink struct{}

func (fakeSink) RecordOrder(*common.RestingOrder)  {}
func (fakeSink) RecordStatus(*common.RestingOrder) {}
func (fakeSink) RecordTrade(common.Trade)          {}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	var tb tomb.Tomb
	idx := index.New(0)
	c := New(&tb, idx, fakePublisher{}, fakeSink{}, nil)
	t.Cleanup(func() {
		tb.Kill(nil)
		_ = tb.Wait()
	})
	return c
}

func limitReq(symbol string, side common.Side, price, qty string) common.OrderRequest {
	p := decimal.RequireFromString(price)
	return common.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     common.LimitOrder,
		Price:    &p,
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestSubmit_LazilyCreatesSymbolWorker(t *testing.T) {
	c := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := c.Submit(ctx, limitReq("aapl", common.Buy, "100", "10"))
	require.NoError(t, err)
	assert.Equal(t, common.StatusOpen, result.Status)
	assert.Contains(t, c.Symbols(), "AAPL", "symbol must be canonicalized to upper case")
}

func TestSubmitThenCancel_ObservesSubmitEffects(t *testing.T) {
	c := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := c.Submit(ctx, limitReq("AAPL", common.Buy, "100", "10"))
	require.NoError(t, err)

	cancelResult, err := c.Cancel(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, cancelResult.Status)
}

func TestCancel_UnknownOrderReturnsNotFound(t *testing.T) {
	c := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Cancel(ctx, "ORDER-missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSymbolsAreIndependent(t *testing.T) {
	c := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Submit(ctx, limitReq("AAPL", common.Buy, "100", "10"))
	require.NoError(t, err)
	_, err = c.Submit(ctx, limitReq("MSFT", common.Sell, "200", "5"))
	require.NoError(t, err)

	symbols := c.Symbols()
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, symbols)

	aaplEngine, ok := c.Engine("aapl")
	require.True(t, ok)
	_, hasBid := aaplEngine.Book().BestBid()
	assert.True(t, hasBid)

	msftEngine, ok := c.Engine("MSFT")
	require.True(t, ok)
	_, hasAsk := msftEngine.Book().BestAsk()
	assert.True(t, hasAsk)
}

func TestConfigLookup_AppliesPerSymbolTickLot(t *testing.T) {
	var tb tomb.Tomb
	idx := index.New(0)
	cfgFor := func(symbol string) engine.Config {
		if symbol == "AAPL" {
			return engine.Config{Tick: decimal.RequireFromString("1")}
		}
		return engine.Config{}
	}
	c := New(&tb, idx, fakePublisher{}, fakeSink{}, cfgFor)
	t.Cleanup(func() {
		tb.Kill(nil)
		_ = tb.Wait()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Submit(ctx, limitReq("AAPL", common.Buy, "100.5", "10"))
	assert.Error(t, err, "price must conform to the configured tick size")
}

package persistence

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

func testOrder() *common.RestingOrder {
	price := decimal.RequireFromString("100")
	return &common.RestingOrder{
		ID:        "ORDER-1",
		Symbol:    "AAPL",
		Side:      common.Buy,
		Type:      common.LimitOrder,
		Price:     price,
		Quantity:  decimal.RequireFromString("10"),
		Owner:     "alice",
		Timestamp: time.Now().UTC(),
		Status:    common.StatusOpen,
	}
}

func TestSink_RecordsOrderAndTrade(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, 0)

	var t1 tomb.Tomb
	t1.Go(func() error { return s.Run(&t1) })

	s.RecordOrder(testOrder())
	s.RecordTrade(common.Trade{
		ID:           "TRADE-1",
		Symbol:       "AAPL",
		Price:        decimal.RequireFromString("100"),
		Quantity:     decimal.RequireFromString("5"),
		MakerOrderID: "ORDER-0",
		TakerOrderID: "ORDER-1",
		Timestamp:    time.Now().UTC(),
	})

	t1.Kill(nil)
	require.NoError(t, t1.Wait())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var order OrderRecord
	require.NoError(t, json.Unmarshal(lines[0], &order))
	assert.Equal(t, "ORDER-1", order.OrderID)
	assert.Equal(t, "100", order.Price)

	var trade TradeRecord
	require.NoError(t, json.Unmarshal(lines[1], &trade))
	assert.Equal(t, "TRADE-1", trade.TradeID)

	assert.True(t, s.Healthy())
}

func TestSink_MarketOrderOmitsPrice(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, 0)

	order := testOrder()
	order.Type = common.MarketOrder
	s.RecordOrder(order)

	var t1 tomb.Tomb
	t1.Go(func() error { return s.Run(&t1) })
	t1.Kill(nil)
	require.NoError(t, t1.Wait())

	var record OrderRecord
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Empty(t, record.Price)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func TestSink_UnhealthyOnWriteFailure(t *testing.T) {
	s := New(failingWriter{}, 0)
	s.RecordOrder(testOrder())

	var t1 tomb.Tomb
	t1.Go(func() error { return s.Run(&t1) })
	t1.Kill(nil)
	require.NoError(t, t1.Wait())

	assert.False(t, s.Healthy())
}

func TestSink_QueueOverflowMarksUnhealthy(t *testing.T) {
	s := New(&bytes.Buffer{}, 1)
	// Fill the queue without a Run goroutine draining it.
	for i := 0; i < 5; i++ {
		s.RecordOrder(testOrder())
	}
	assert.False(t, s.Healthy())
}

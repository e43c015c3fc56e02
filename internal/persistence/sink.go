// Package persistence implements the PersistenceSink of spec.md §4.5: an
// asynchronous append-only writer of order insertions, status transitions,
// and trades. Persistence is an audit trail, not a recovery source (spec.md
// §1), so writes are newline-delimited JSON records with no read-back path
// and no transactional guarantees beyond per-identifier ordering.
package persistence

import (
	"encoding/json"
	"io"
	"sync/atomic"
	"time"

	"fenrir/internal/common"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// DefaultQueueSize bounds how many pending records may be enqueued before
// RecordX calls start dropping, per spec.md §5 ("the queue enqueue itself
// must be non-blocking or O(1)").
const DefaultQueueSize = 4096

// OrderRecord is the `orders` schema row of spec.md §6.
type OrderRecord struct {
	OrderID   string `json:"order_id"`
	Symbol    string `json:"symbol"`
	User      string `json:"user"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price,omitempty"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// TradeRecord is the `trades` schema row of spec.md §6.
type TradeRecord struct {
	TradeID       string `json:"trade_id"`
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	MakerOrderID  string `json:"maker_order_id"`
	TakerOrderID  string `json:"taker_order_id"`
	AggressorSide string `json:"aggressor_side"`
	Timestamp     string `json:"timestamp"`
}

// Sink is the async writer. Record* methods are safe to call from any
// symbol's matching goroutine; the actual write happens on Run's goroutine.
type Sink struct {
	w       io.Writer
	queue   chan any
	healthy atomic.Bool
}

// New constructs a Sink writing to w. queueSize <= 0 uses DefaultQueueSize.
func New(w io.Writer, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &Sink{
		w:     w,
		queue: make(chan any, queueSize),
	}
	s.healthy.Store(true)
	return s
}

// Healthy reports false after a failed write or after a record was dropped
// because the queue was full, and true again after the next successful
// write. Never gates matching (spec.md §4.5): it is surfaced on a health
// endpoint only.
func (s *Sink) Healthy() bool {
	return s.healthy.Load()
}

// RecordOrder enqueues a newly-created order's initial state.
func (s *Sink) RecordOrder(order *common.RestingOrder) {
	s.enqueue(orderRecord(order))
}

// RecordStatus enqueues an order's current status/quantity after a
// transition (partial, filled, cancelled, or the initial open/resting).
func (s *Sink) RecordStatus(order *common.RestingOrder) {
	s.enqueue(orderRecord(order))
}

// RecordTrade enqueues an executed trade.
func (s *Sink) RecordTrade(trade common.Trade) {
	s.enqueue(TradeRecord{
		TradeID:       trade.ID,
		Symbol:        trade.Symbol,
		Price:         trade.Price.String(),
		Quantity:      trade.Quantity.String(),
		MakerOrderID:  trade.MakerOrderID,
		TakerOrderID:  trade.TakerOrderID,
		AggressorSide: trade.AggressorSide.String(),
		Timestamp:     trade.Timestamp.Format(time.RFC3339Nano),
	})
}

func orderRecord(order *common.RestingOrder) OrderRecord {
	price := ""
	if order.Type.RequiresPrice() {
		price = order.Price.String()
	}
	return OrderRecord{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		User:      order.Owner,
		Side:      order.Side.String(),
		Type:      order.Type.String(),
		Quantity:  order.Quantity.String(),
		Price:     price,
		Timestamp: order.Timestamp.Format(time.RFC3339Nano),
		Status:    order.Status.String(),
	}
}

// enqueue is the non-blocking, O(1) boundary crossed from the matching
// critical section into the async sink (spec.md §5).
func (s *Sink) enqueue(record any) {
	select {
	case s.queue <- record:
	default:
		s.healthy.Store(false)
		log.Error().Msg("persistence sink queue full, dropping record")
	}
}

// Run drains the queue and writes records until t signals shutdown. It is
// meant to be started once, under the process's shared tomb.Tomb, the same
// way the teacher's worker pool runs connection handlers under t.Go.
func (s *Sink) Run(t *tomb.Tomb) error {
	enc := json.NewEncoder(s.w)
	for {
		select {
		case <-t.Dying():
			s.drain(enc)
			return nil
		case record := <-s.queue:
			s.write(enc, record)
		}
	}
}

func (s *Sink) drain(enc *json.Encoder) {
	for {
		select {
		case record := <-s.queue:
			s.write(enc, record)
		default:
			return
		}
	}
}

func (s *Sink) write(enc *json.Encoder, record any) {
	if err := enc.Encode(record); err != nil {
		s.healthy.Store(false)
		log.Error().Err(err).Msg("persistence sink write failed")
		return
	}
	s.healthy.Store(true)
}

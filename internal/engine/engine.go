// Package engine implements the MatchingEngine state machine of spec.md
// §4.3: one instance per symbol, consuming submissions serialized by the
// coordinator, matching them against that symbol's OrderBook, and emitting
// Trade records to a publisher and a persistence sink.
package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"fenrir/internal/book"
	"fenrir/internal/common"
	"fenrir/internal/decimalx"
	"fenrir/internal/errs"
	"fenrir/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TradeSink receives every trade the moment it is matched, in match order.
// Implemented by internal/publisher.TradePublisher.
type TradeSink interface {
	Publish(trade common.Trade)
}

// PersistenceSink receives order and trade state transitions for the audit
// trail (spec.md §4.5, §6). Implemented by internal/persistence.Sink.
type PersistenceSink interface {
	RecordOrder(order *common.RestingOrder)
	RecordStatus(order *common.RestingOrder)
	RecordTrade(trade common.Trade)
}

// Index records where a resting order lives, for cross-symbol cancel
// routing (spec.md §2 component 3). Implemented by internal/index.OrderIndex.
type Index interface {
	Set(orderID, symbol string)
	Delete(orderID string)
}

// Config is a symbol's tick/lot rounding policy (spec.md §9 open question).
// Zero values disable the corresponding check.
type Config struct {
	Tick decimal.Decimal
	Lot  decimal.Decimal
}

// Engine is the matching state machine for exactly one symbol. It is not
// safe for concurrent use: spec.md §5 requires a single logical thread per
// symbol, so the coordinator must ensure only one goroutine ever calls
// Submit/Cancel on a given Engine at a time.
type Engine struct {
	symbol string
	book   *book.OrderBook
	index  Index
	trades TradeSink
	sink   PersistenceSink
	cfg    Config

	sequence uint64
	orders   map[string]*common.RestingOrder // every order this engine has ever seen, keyed by id

	poisoned atomic.Bool
}

// New constructs a MatchingEngine for symbol.
func New(symbol string, idx Index, trades TradeSink, sink PersistenceSink, cfg Config) *Engine {
	return &Engine{
		symbol: symbol,
		book:   book.NewOrderBook(symbol),
		index:  idx,
		trades: trades,
		sink:   sink,
		cfg:    cfg,
		orders: make(map[string]*common.RestingOrder),
	}
}

// Book exposes the underlying order book for read-only diagnostics/tests.
func (e *Engine) Book() *book.OrderBook {
	return e.book
}

// Poisoned reports whether an invariant violation has halted this symbol.
func (e *Engine) Poisoned() bool {
	return e.poisoned.Load()
}

func (e *Engine) poison(reason string) {
	e.poisoned.Store(true)
	log.Error().Str("symbol", e.symbol).Str("reason", reason).Msg("matching engine poisoned: invariant violation")
}

// Submit runs the spec.md §4.3 algorithm for a single incoming order.
func (e *Engine) Submit(req common.OrderRequest) (common.SubmissionResult, error) {
	if e.poisoned.Load() {
		return common.SubmissionResult{}, fmt.Errorf("%w: symbol %s is poisoned", errs.ErrInternal, e.symbol)
	}

	if err := validate(req, e.cfg); err != nil {
		return common.SubmissionResult{}, err
	}

	start := time.Now()
	defer func() {
		metrics.SubmitDuration.WithLabelValues(e.symbol).Observe(time.Since(start).Seconds())
	}()

	now := time.Now().UTC()
	order := &common.RestingOrder{
		ID:            "ORDER-" + uuid.New().String(),
		Symbol:        e.symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		TotalQuantity: req.Quantity,
		Owner:         req.Owner,
		Timestamp:     now,
		ExchTimestamp: now,
		Status:        common.StatusOpen,
	}
	if req.Price != nil {
		order.Price = *req.Price
	}
	e.orders[order.ID] = order
	e.sink.RecordOrder(order)

	if req.Type == common.FOKOrder {
		available := e.book.MarketableDepth(req.Side, req.Price)
		if available.LessThan(req.Quantity) {
			order.Status = common.StatusCancelled
			e.sink.RecordStatus(order)
			metrics.OrdersTotal.WithLabelValues(e.symbol, order.Type.String(), order.Status.String()).Inc()
			return common.SubmissionResult{OrderID: order.ID, Status: common.StatusCancelled}, errs.ErrRejected
		}
	}

	trades, err := e.matchLoop(order)
	if err != nil {
		return common.SubmissionResult{}, err
	}

	status := e.finalize(order)
	if e.book.Crossed() {
		e.poison("book crossed after submit")
		return common.SubmissionResult{OrderID: order.ID, Trades: trades, Status: status}, fmt.Errorf("%w: book crossed for symbol %s", errs.ErrInternal, e.symbol)
	}
	return common.SubmissionResult{OrderID: order.ID, Trades: trades, Status: status}, nil
}

// matchLoop consumes the opposite side's best level while it is marketable
// against order, emitting a Trade per fill (spec.md §4.3 step 3).
func (e *Engine) matchLoop(taker *common.RestingOrder) ([]common.Trade, error) {
	var trades []common.Trade

	for taker.Quantity.IsPositive() {
		level, ok := e.book.BestOpposite(taker.Side)
		if !ok {
			break
		}
		if !e.marketable(taker, level.Price) {
			break
		}

		maker, ok := level.Peek()
		if !ok {
			e.poison("best level has no head order")
			return trades, fmt.Errorf("%w: empty level at head for symbol %s", errs.ErrInternal, e.symbol)
		}

		tradeQty := decimal.Min(taker.Quantity, maker.Quantity)

		takerRemaining, err := decimalx.SubNonNegative(taker.Quantity, tradeQty)
		if err != nil {
			e.poison(err.Error())
			return trades, fmt.Errorf("%w: %v", errs.ErrInternal, err)
		}
		makerRemaining, err := decimalx.SubNonNegative(maker.Quantity, tradeQty)
		if err != nil {
			e.poison(err.Error())
			return trades, fmt.Errorf("%w: %v", errs.ErrInternal, err)
		}
		taker.Quantity = takerRemaining
		maker.Quantity = makerRemaining

		trade := common.Trade{
			ID:            "TRADE-" + uuid.New().String(),
			Symbol:        e.symbol,
			Price:         level.Price, // maker's price: price improvement accrues to the taker
			Quantity:      tradeQty,
			MakerOrderID:  maker.ID,
			TakerOrderID:  taker.ID,
			AggressorSide: taker.Side,
			Timestamp:     time.Now().UTC(),
		}
		trades = append(trades, trade)
		e.trades.Publish(trade)
		e.sink.RecordTrade(trade)
		metrics.TradesTotal.WithLabelValues(e.symbol).Inc()

		if maker.Quantity.IsZero() {
			maker.Status = common.StatusFilled
			level.PopHead()
			e.book.DeleteLocation(maker.ID)
			e.index.Delete(maker.ID)
		} else {
			maker.Status = common.StatusPartial
		}
		e.sink.RecordStatus(maker)

		e.book.RemoveIfEmpty(level)
	}

	return trades, nil
}

// marketable reports whether the incoming order can cross against a level
// at levelPrice (spec.md §4.3 step 3b, GLOSSARY "marketable").
func (e *Engine) marketable(taker *common.RestingOrder, levelPrice decimal.Decimal) bool {
	if taker.Type == common.MarketOrder {
		return true
	}
	if taker.Side == common.Buy {
		return levelPrice.LessThanOrEqual(taker.Price)
	}
	return levelPrice.GreaterThanOrEqual(taker.Price)
}

// finalize applies the residual-handling rules of spec.md §4.3 step 4 and
// records the resulting terminal or resting status.
func (e *Engine) finalize(order *common.RestingOrder) common.Status {
	if order.Quantity.IsZero() {
		order.Status = common.StatusFilled
		e.sink.RecordStatus(order)
		metrics.OrdersTotal.WithLabelValues(e.symbol, order.Type.String(), order.Status.String()).Inc()
		return order.Status
	}

	switch order.Type {
	case common.LimitOrder:
		e.sequence++
		order.Sequence = e.sequence
		order.ExchTimestamp = time.Now().UTC()
		e.book.InsertResting(order)
		e.index.Set(order.ID, e.symbol)
		if order.Quantity.Equal(order.TotalQuantity) {
			order.Status = common.StatusOpen
		} else {
			order.Status = common.StatusPartial
		}
	default:
		// market, ioc, and (by construction, unreachable) fok leftovers
		// never rest — spec.md §9 explicitly removes the "rest at last
		// match price" fallback present in the original implementation.
		order.Status = common.StatusCancelled
	}
	e.sink.RecordStatus(order)
	metrics.OrdersTotal.WithLabelValues(e.symbol, order.Type.String(), order.Status.String()).Inc()
	return order.Status
}

// Cancel implements spec.md §4.3 "Cancel operation" / §6 cancel contract.
func (e *Engine) Cancel(orderID string) (common.SubmissionResult, error) {
	if e.poisoned.Load() {
		return common.SubmissionResult{}, fmt.Errorf("%w: symbol %s is poisoned", errs.ErrInternal, e.symbol)
	}

	order, ok := e.orders[orderID]
	if !ok {
		return common.SubmissionResult{}, errs.ErrNotFound
	}
	if order.Status.Terminal() {
		return common.SubmissionResult{}, errs.ErrAlreadyTerminal
	}

	if _, err := e.book.Cancel(orderID); err != nil {
		e.poison(fmt.Sprintf("cancel: order %s tracked as resting but missing from book: %v", orderID, err))
		return common.SubmissionResult{}, fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}
	e.index.Delete(orderID)

	order.Status = common.StatusCancelled
	e.sink.RecordStatus(order)

	return common.SubmissionResult{OrderID: orderID, Status: common.StatusCancelled}, nil
}

// validate enforces spec.md §4.3 preconditions plus the tick/lot policy of
// §9's open question.
func validate(req common.OrderRequest, cfg Config) error {
	if req.Quantity.IsZero() || req.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity must be positive", errs.ErrInvalidOrder)
	}
	if req.Type.RequiresPrice() && req.Price == nil {
		return fmt.Errorf("%w: %v orders require a price", errs.ErrInvalidOrder, req.Type)
	}
	if !req.Type.RequiresPrice() && req.Price != nil {
		return fmt.Errorf("%w: %v orders must not specify a price", errs.ErrInvalidOrder, req.Type)
	}
	if req.Price != nil && !decimalx.ConformsToTick(*req.Price, cfg.Tick) {
		return fmt.Errorf("%w: price %s does not conform to tick size %s", errs.ErrInvalidOrder, req.Price, cfg.Tick)
	}
	if !decimalx.ConformsToLot(req.Quantity, cfg.Lot) {
		return fmt.Errorf("%w: quantity %s does not conform to lot size %s", errs.ErrInvalidOrder, req.Quantity, cfg.Lot)
	}
	return nil
}

// Package book implements the per-symbol limit order book (spec.md §4.1,
// §4.2): two price-indexed ordered containers of PriceLevels, one per side,
// backed by github.com/tidwall/btree for O(log P) level insert/remove and
// O(1) access to the best (extreme) level.
package book

import (
	"errors"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

var (
	// ErrLevelNotFound is returned by OrderBook.Cancel when the order id has
	// no location entry in this book, or its price level or the order itself
	// is missing from the level.
	ErrLevelNotFound = errors.New("book: price level not found")
)

// location is the per-book secondary index entry: where a resting order's
// id currently lives, enough to remove it in O(log P) (spec.md §3).
type location struct {
	side  common.Side
	price decimal.Decimal
}

type priceLevels = btree.BTreeG[*PriceLevel]

// OrderBook is a single symbol's bid and ask sides.
type OrderBook struct {
	Symbol string

	bids *priceLevels // sorted descending: best bid is the min item
	asks *priceLevels // sorted ascending: best ask is the min item

	locations map[string]location
}

// NewOrderBook constructs an empty book for symbol.
func NewOrderBook(symbol string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &OrderBook{
		Symbol:    symbol,
		bids:      bids,
		asks:      asks,
		locations: make(map[string]location),
	}
}

func (book *OrderBook) sideTree(side common.Side) *priceLevels {
	if side == common.Buy {
		return book.bids
	}
	return book.asks
}

// BestBid returns the highest-priced bid level, if any.
func (book *OrderBook) BestBid() (*PriceLevel, bool) {
	return book.bids.Min()
}

// BestAsk returns the lowest-priced ask level, if any.
func (book *OrderBook) BestAsk() (*PriceLevel, bool) {
	return book.asks.Min()
}

// BestOpposite returns the best level on the other side from side — the
// side a taker on `side` would match against.
func (book *OrderBook) BestOpposite(side common.Side) (*PriceLevel, bool) {
	if side == common.Buy {
		return book.BestAsk()
	}
	return book.BestBid()
}

// InsertResting places order at its price level, creating the level if
// absent, and records its location for later cancellation (spec.md §4.2
// "insert_resting").
func (book *OrderBook) InsertResting(order *common.RestingOrder) {
	tree := book.sideTree(order.Side)
	probe := &PriceLevel{Price: order.Price}
	level, ok := tree.GetMut(probe)
	if !ok {
		level = &PriceLevel{Price: order.Price, Side: order.Side}
		tree.Set(level)
	}
	level.Push(order)
	book.locations[order.ID] = location{side: order.Side, price: order.Price}
}

// Cancel locates order.ID via the book's location index, removes it from
// its level, deletes the level if it becomes empty, and removes the index
// entry (spec.md §4.2 "cancel"). Returns the removed order.
func (book *OrderBook) Cancel(orderID string) (*common.RestingOrder, error) {
	loc, ok := book.locations[orderID]
	if !ok {
		return nil, ErrLevelNotFound
	}
	tree := book.sideTree(loc.side)
	probe := &PriceLevel{Price: loc.price}
	level, ok := tree.GetMut(probe)
	if !ok {
		delete(book.locations, orderID)
		return nil, ErrLevelNotFound
	}
	removed, ok := level.Remove(orderID)
	if !ok {
		delete(book.locations, orderID)
		return nil, ErrLevelNotFound
	}
	delete(book.locations, orderID)
	if level.Empty() {
		tree.Delete(level)
	}
	return removed, nil
}

// RemoveIfEmpty deletes level from its side's tree when it has no
// remaining quantity. Called by the matching loop after consuming a level's
// head so that "best" queries never return a zero-qty level (spec.md §4.2).
func (book *OrderBook) RemoveIfEmpty(level *PriceLevel) {
	if !level.Empty() {
		return
	}
	tree := book.sideTree(level.Side)
	tree.Delete(level)
}

// DeleteLocation drops an order's location entry without touching the
// level; used once a maker has been fully consumed and popped from its
// level's head by the matching loop.
func (book *OrderBook) DeleteLocation(orderID string) {
	delete(book.locations, orderID)
}

// MarketableDepth sums remaining quantity across every level on the
// opposite side that is marketable against an incoming order of the given
// side and (optional) limit price — the FOK feasibility pre-check of
// spec.md §4.3 step 2. A nil price means "all levels" (market FOK, though
// that combination is rejected earlier as InvalidOrder).
func (book *OrderBook) MarketableDepth(side common.Side, limitPrice *decimal.Decimal) decimal.Decimal {
	var tree *priceLevels
	if side == common.Buy {
		tree = book.asks
	} else {
		tree = book.bids
	}

	total := decimal.Zero
	tree.Scan(func(level *PriceLevel) bool {
		if limitPrice != nil {
			if side == common.Buy && level.Price.GreaterThan(*limitPrice) {
				return false // asks ascending: nothing further can be marketable
			}
			if side == common.Sell && level.Price.LessThan(*limitPrice) {
				return false // bids descending: nothing further can be marketable
			}
		}
		total = total.Add(level.TotalQty())
		return true
	})
	return total
}

// Crossed reports whether the book is in the illegal state best bid >= best
// ask (spec.md §3 invariant). Used by tests and by Engine.Submit, which
// poisons the symbol if a submission leaves the book crossed.
func (book *OrderBook) Crossed() bool {
	bid, bidOk := book.BestBid()
	ask, askOk := book.BestAsk()
	if !bidOk || !askOk {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// Items returns the book's levels on one side, in their tree iteration
// order (descending for bids, ascending for asks). Intended for tests and
// diagnostics, not the matching hot path.
func (book *OrderBook) Items(side common.Side) []*PriceLevel {
	tree := book.sideTree(side)
	items := make([]*PriceLevel, 0, tree.Len())
	tree.Scan(func(level *PriceLevel) bool {
		items = append(items, level)
		return true
	})
	return items
}

// Package publisher implements the TradePublisher broadcast of spec.md
// §4.4: a one-producer-many-subscriber channel that fans out Trade records
// in emission order. The chosen overflow policy is disconnect-on-overflow
// (the spec's documented default) so a slow subscriber can never block a
// fast one or the matching critical section upstream.
package publisher

import (
	"sync"

	"fenrir/internal/common"

	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the per-subscriber channel capacity. A subscriber
// that falls this far behind is disconnected rather than applied
// backpressure (spec.md §4.4).
const DefaultBufferSize = 256

// TradePublisher broadcasts Trade records to any number of subscribers.
type TradePublisher struct {
	mu      sync.Mutex
	subs    map[uint64]chan common.Trade
	nextID  uint64
	bufSize int
}

// New constructs a TradePublisher. bufSize <= 0 uses DefaultBufferSize.
func New(bufSize int) *TradePublisher {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &TradePublisher{
		subs:    make(map[uint64]chan common.Trade),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The subscriber list is locked only for the
// duration of this call, never during emission (spec.md §5).
func (p *TradePublisher) Subscribe() (<-chan common.Trade, func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	ch := make(chan common.Trade, p.bufSize)
	p.subs[id] = ch
	p.mu.Unlock()

	unsubscribe := func() {
		p.mu.Lock()
		if existing, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(existing)
		}
		p.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish fans trade out to every current subscriber in emission order. It
// never blocks: a subscriber whose buffer is full is disconnected (its
// channel closed and removed) rather than stalling the sender.
func (p *TradePublisher) Publish(trade common.Trade) {
	p.mu.Lock()
	snapshot := make(map[uint64]chan common.Trade, len(p.subs))
	for id, ch := range p.subs {
		snapshot[id] = ch
	}
	p.mu.Unlock()

	var overflowed []uint64
	for id, ch := range snapshot {
		select {
		case ch <- trade:
		default:
			close(ch)
			overflowed = append(overflowed, id)
		}
	}

	if len(overflowed) == 0 {
		return
	}
	p.mu.Lock()
	for _, id := range overflowed {
		delete(p.subs, id)
	}
	p.mu.Unlock()
	log.Warn().Int("count", len(overflowed)).Str("trade_id", trade.ID).
		Msg("trade publisher disconnected slow subscribers")
}

// SubscriberCount reports the current number of connected subscribers.
func (p *TradePublisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Package index implements the process-wide OrderIndex of spec.md §2/§4.1:
// a mapping from order identifier to the symbol its resting remainder lives
// in, used by the Coordinator to route a bare-order-id Cancel request to
// the right symbol worker without scanning every book. Sharded by a hash of
// the order id so lookups don't contend with matching on unrelated symbols
// (spec.md §5: "must be sharded or guarded to avoid contention").
package index

import (
	"hash/fnv"
	"sync"
)

const defaultShardCount = 32

type shard struct {
	mu sync.RWMutex
	m  map[string]string // order id -> symbol
}

// OrderIndex is safe for concurrent use by multiple symbol workers.
type OrderIndex struct {
	shards []*shard
}

// New constructs an OrderIndex with shardCount shards. shardCount <= 0
// falls back to a sane default.
func New(shardCount int) *OrderIndex {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{m: make(map[string]string)}
	}
	return &OrderIndex{shards: shards}
}

func (idx *OrderIndex) shardFor(orderID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return idx.shards[h.Sum32()%uint32(len(idx.shards))]
}

// Set records that orderID's resting remainder lives in symbol.
func (idx *OrderIndex) Set(orderID, symbol string) {
	s := idx.shardFor(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[orderID] = symbol
}

// Get returns the symbol orderID rests in, if tracked.
func (idx *OrderIndex) Get(orderID string) (string, bool) {
	s := idx.shardFor(orderID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbol, ok := s.m[orderID]
	return symbol, ok
}

// Delete removes orderID from the index, once it is no longer resting.
func (idx *OrderIndex) Delete(orderID string) {
	s := idx.shardFor(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, orderID)
}

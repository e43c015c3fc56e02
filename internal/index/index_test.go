package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetGetDelete(t *testing.T) {
	idx := New(0)

	_, ok := idx.Get("ORDER-1")
	assert.False(t, ok)

	idx.Set("ORDER-1", "AAPL")
	symbol, ok := idx.Get("ORDER-1")
	assert.True(t, ok)
	assert.Equal(t, "AAPL", symbol)

	idx.Delete("ORDER-1")
	_, ok = idx.Get("ORDER-1")
	assert.False(t, ok)
}

func TestConcurrentAccessAcrossShards(t *testing.T) {
	idx := New(4)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("ORDER-%d", i)
			idx.Set(id, "AAPL")
			symbol, ok := idx.Get(id)
			assert.True(t, ok)
			assert.Equal(t, "AAPL", symbol)
		}(i)
	}
	wg.Wait()
}

package memory

import (
	"context"
	"sync"
	"time"
)

type rateKey struct {
	identity string
	window   int64
}

// RateCounter is an in-memory ratelimit.Counter. Windows older than the
// previous minute are pruned on each call.
type RateCounter struct {
	mu     sync.Mutex
	counts map[rateKey]int64
}

// NewRateCounter returns an empty counter.
func NewRateCounter() *RateCounter {
	return &RateCounter{counts: make(map[rateKey]int64)}
}

func (c *RateCounter) Incr(_ context.Context, identity string, window time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := window.Unix()
	for k := range c.counts {
		if k.window < w-60 {
			delete(c.counts, k)
		}
	}
	k := rateKey{identity: identity, window: w}
	c.counts[k]++
	return c.counts[k], nil
}

package reader

import (
	"fmt"
	"sync"

	"kline-archive/internal/domain"
)

// readCache is a bounded cache of raw read results keyed by (instrument,
// resolution, length). It is deliberately never invalidated on write:
// callers that need read-after-write freshness use ReadRaw or Flush. FIFO
// eviction keeps it simple; hit patterns here are dominated by repeated
// identical queries, not scans.
type readCache struct {
	mu    sync.Mutex
	cap   int
	data  map[string][]domain.Bar
	order []string
}

func newReadCache(capacity int) *readCache {
	return &readCache{
		cap:  capacity,
		data: make(map[string][]domain.Bar, capacity),
	}
}

func cacheKey(instrument string, res domain.Resolution, n int) string {
	return fmt.Sprintf("%s|%d|%d", instrument, int(res), n)
}

func (c *readCache) get(key string) ([]domain.Bar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bars, ok := c.data[key]
	return bars, ok
}

func (c *readCache) put(key string, bars []domain.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok {
		for len(c.order) >= c.cap && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.data, oldest)
		}
		c.order = append(c.order, key)
	}
	c.data[key] = bars
}

func (c *readCache) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]domain.Bar, c.cap)
	c.order = nil
}

func (c *readCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

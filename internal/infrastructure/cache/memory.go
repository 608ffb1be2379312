package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is one cached response body.
type Entry struct {
	Data      []byte
	Timestamp time.Time
	TTL       time.Duration
}

func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.Timestamp) < e.TTL
}

// MemoryCache is a process-local TTL cache. Expired entries are dropped on
// read and never returned.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryCache builds a cache using now as its clock; nil means time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]Entry),
		now:     now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.Fresh(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return append([]byte(nil), entry.Data...), true
}

func (c *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{
		Data:      append([]byte(nil), data...),
		Timestamp: c.now(),
		TTL:       ttl,
	}
}

func (c *MemoryCache) Clear(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

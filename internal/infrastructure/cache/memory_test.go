package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewMemoryCache(clock.Now)
	ctx := context.Background()

	cache.Set(ctx, "/api/status/t1", []byte(`{"status":"analyzing"}`), 100*time.Millisecond)

	clock.Advance(50 * time.Millisecond)
	data, ok := cache.Get(ctx, "/api/status/t1")
	if !ok || string(data) != `{"status":"analyzing"}` {
		t.Fatalf("expected hit before ttl, got %q ok=%v", data, ok)
	}

	clock.Advance(100 * time.Millisecond)
	if _, ok := cache.Get(ctx, "/api/status/t1"); ok {
		t.Fatalf("expected miss after ttl")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped")
	}
}

func TestMemoryCacheCopiesInputAndClears(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()

	buf := []byte("payload")
	cache.Set(ctx, "k", buf, time.Minute)
	buf[0] = 'X'
	if data, _ := cache.Get(ctx, "k"); string(data) != "payload" {
		t.Fatalf("cache must not alias caller buffer, got %q", data)
	}
	read, _ := cache.Get(ctx, "k")
	read[0] = 'Y'
	if data, _ := cache.Get(ctx, "k"); string(data) != "payload" {
		t.Fatalf("cache must not alias returned buffer, got %q", data)
	}

	cache.Set(ctx, "skip", []byte("x"), 0)
	if _, ok := cache.Get(ctx, "skip"); ok {
		t.Fatalf("zero ttl must not be stored")
	}

	cache.Clear(ctx)
	if _, ok := cache.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after clear")
	}
}

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStoreLoadCoalescesConcurrentMisses(t *testing.T) {
	store := NewStore(NewMemoryCache(nil), nil)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("status"), nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := store.Load(ctx, "/api/status/t1", time.Minute, load)
			if err != nil {
				t.Errorf("load: %v", err)
				return
			}
			results[i] = string(data)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one backend load, got %d", got)
	}
	for i, got := range results {
		if got != "status" {
			t.Fatalf("caller %d got %q", i, got)
		}
	}
	if data, ok := store.Get(ctx, "/api/status/t1"); !ok || string(data) != "status" {
		t.Fatalf("expected loaded value cached")
	}
}

func TestStoreDropsLoadThatRacedWithClear(t *testing.T) {
	store := NewStore(NewMemoryCache(nil), nil)
	ctx := context.Background()

	_, err := store.Load(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		store.Clear(ctx)
		return []byte("stale"), nil
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := store.Get(ctx, "k"); ok {
		t.Fatalf("value read before clear must not be cached")
	}
}

func TestStoreFetchPrefersFreshCache(t *testing.T) {
	var hits, misses int
	store := NewStore(NewMemoryCache(nil), func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})
	ctx := context.Background()

	loads := 0
	load := func(context.Context) ([]byte, error) {
		loads++
		return []byte("healthy"), nil
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Fetch(ctx, "/health", time.Minute, load); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if loads != 1 || hits != 2 || misses != 1 {
		t.Fatalf("expected 1 load/2 hits/1 miss, got %d/%d/%d", loads, hits, misses)
	}

	errBoom := errors.New("boom")
	store.Clear(ctx)
	if _, err := store.Fetch(ctx, "/health", time.Minute, func(context.Context) ([]byte, error) {
		return nil, errBoom
	}); !errors.Is(err, errBoom) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestStoreLoadKeepsServingWhenFirstCallerCancels(t *testing.T) {
	store := NewStore(NewMemoryCache(nil), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(ctx context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return []byte("analyzing"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := store.Load(firstCtx, "/api/status/t1", time.Minute, load)
		firstErr <- err
	}()
	<-started

	secondData := make(chan []byte, 1)
	secondErr := make(chan error, 1)
	go func() {
		data, err := store.Load(context.Background(), "/api/status/t1", time.Minute, load)
		secondData <- data
		secondErr <- err
	}()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller canceled, got %v", err)
	}
	close(release)

	if err := <-secondErr; err != nil {
		t.Fatalf("second caller must not inherit cancellation, got %v", err)
	}
	if data := <-secondData; string(data) != "analyzing" {
		t.Fatalf("unexpected data %q", data)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one shared load, got %d", got)
	}
	if _, ok := store.Get(context.Background(), "/api/status/t1"); !ok {
		t.Fatalf("expected shared result cached")
	}
}

package cache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/autofund-client/internal/core/ports"
)

// Store fronts a ResponseCache with miss coalescing and a generation
// counter. A load that started before Clear never writes its result back.
type Store struct {
	backend  ports.ResponseCache
	group    singleflight.Group
	gen      atomic.Uint64
	onLookup func(hit bool)
}

func NewStore(backend ports.ResponseCache, onLookup func(hit bool)) *Store {
	if backend == nil {
		backend = NewMemoryCache(nil)
	}
	return &Store{backend: backend, onLookup: onLookup}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	data, ok := s.backend.Get(ctx, key)
	if s.onLookup != nil {
		s.onLookup(ok)
	}
	return data, ok
}

func (s *Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	s.backend.Set(ctx, key, data, ttl)
}

func (s *Store) Clear(ctx context.Context) {
	s.gen.Add(1)
	s.backend.Clear(ctx)
}

// Load runs load once per key across concurrent callers and caches a
// successful result unless the cache was cleared meanwhile. The shared
// load runs detached from any single caller, so one caller giving up does
// not fail the others; each caller waits only as long as its own ctx.
// load must bound itself with its own timeouts.
func (s *Store) Load(
	ctx context.Context,
	key string,
	ttl time.Duration,
	load func(context.Context) ([]byte, error),
) ([]byte, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		gen := s.gen.Load()
		data, err := load(shared)
		if err != nil {
			return nil, err
		}
		if s.gen.Load() == gen {
			s.backend.Set(shared, key, data, ttl)
		}
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch serves a fresh cached value or falls back to Load.
func (s *Store) Fetch(
	ctx context.Context,
	key string,
	ttl time.Duration,
	load func(context.Context) ([]byte, error),
) ([]byte, error) {
	if data, ok := s.Get(ctx, key); ok {
		return data, nil
	}
	return s.Load(ctx, key, ttl, load)
}

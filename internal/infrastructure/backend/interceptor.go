package backend

import (
	"context"
	"sync"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

type RequestInterceptor func(ctx context.Context, cfg RequestConfig) (RequestConfig, error)

type ResponseInterceptor func(ctx context.Context, resp *Response) (*Response, error)

// ErrorInterceptor either recovers with a substitute response, which is
// then treated as success, or returns the failure to propagate. Returning
// two nils keeps the current failure.
type ErrorInterceptor func(ctx context.Context, failure *domain.Failure) (*Response, *domain.Failure)

// Interceptor groups optional hooks; nil hooks are skipped.
type Interceptor struct {
	Name     string
	Request  RequestInterceptor
	Response ResponseInterceptor
	Error    ErrorInterceptor
}

type InterceptorID uint64

type chainEntry struct {
	id          InterceptorID
	interceptor Interceptor
}

// Chain is an ordered interceptor registry. Each attempt runs against a
// snapshot, so changes made mid-request apply from the next attempt.
type Chain struct {
	mu      sync.Mutex
	nextID  InterceptorID
	entries []chainEntry
}

func NewChain() *Chain {
	return &Chain{}
}

func (c *Chain) Add(interceptor Interceptor) InterceptorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.entries = append(c.entries, chainEntry{id: c.nextID, interceptor: interceptor})
	return c.nextID
}

func (c *Chain) Remove(id InterceptorID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.entries {
		if entry.id == id {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Chain) snapshot() []Interceptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Interceptor, len(c.entries))
	for i, entry := range c.entries {
		out[i] = entry.interceptor
	}
	return out
}

func applyRequest(ctx context.Context, interceptors []Interceptor, cfg RequestConfig) (RequestConfig, error) {
	for _, ic := range interceptors {
		if ic.Request == nil {
			continue
		}
		next, err := ic.Request(ctx, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = next
	}
	return cfg, nil
}

func applyResponse(ctx context.Context, interceptors []Interceptor, resp *Response) (*Response, error) {
	for _, ic := range interceptors {
		if ic.Response == nil {
			continue
		}
		next, err := ic.Response(ctx, resp)
		if err != nil {
			return nil, err
		}
		if next != nil {
			resp = next
		}
	}
	return resp, nil
}

func applyError(ctx context.Context, interceptors []Interceptor, failure *domain.Failure) (*Response, *domain.Failure) {
	for _, ic := range interceptors {
		if ic.Error == nil {
			continue
		}
		resp, next := ic.Error(ctx, failure)
		if resp != nil {
			return resp, nil
		}
		if next != nil {
			failure = next
		}
	}
	return nil, failure
}

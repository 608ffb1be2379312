package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/infrastructure/cache"
	"github.com/kirillkom/autofund-client/internal/infrastructure/offline"
	"github.com/kirillkom/autofund-client/internal/infrastructure/resilience"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultUploadTimeout  = 60 * time.Second
	defaultStatusTTL      = 5 * time.Second
	defaultHealthTTL      = 60 * time.Second
)

// Connectivity is the client's view of the network.
type Connectivity interface {
	Online() bool
}

// ResultValidator checks a raw result payload before it is decoded.
type ResultValidator interface {
	ValidateResult(raw []byte) error
}

// RequestObserver receives one call per logical request, retries included.
type RequestObserver interface {
	ObserveRequest(operation, outcome string, duration time.Duration)
}

type Options struct {
	HTTPClient     *http.Client
	Executor       *resilience.Executor
	Interceptors   *Chain
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	RateLimiter    *rate.Limiter

	Cache     *cache.Store
	StatusTTL time.Duration
	HealthTTL time.Duration

	Connectivity Connectivity
	Queue        *offline.Queue

	ResultValidator ResultValidator
	Observer        RequestObserver
}

type Client struct {
	baseURL        string
	httpClient     *http.Client
	executor       *resilience.Executor
	policy         resilience.Policy
	chain          *Chain
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	limiter        *rate.Limiter

	cache     *cache.Store
	statusTTL time.Duration
	healthTTL time.Duration

	connectivity Connectivity
	queue        *offline.Queue

	validator ResultValidator
	observer  RequestObserver
}

func New(baseURL string, opts Options) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     opts.HTTPClient,
		executor:       opts.Executor,
		chain:          opts.Interceptors,
		requestTimeout: opts.RequestTimeout,
		uploadTimeout:  opts.UploadTimeout,
		limiter:        opts.RateLimiter,
		cache:          opts.Cache,
		statusTTL:      opts.StatusTTL,
		healthTTL:      opts.HealthTTL,
		connectivity:   opts.Connectivity,
		queue:          opts.Queue,
		validator:      opts.ResultValidator,
		observer:       opts.Observer,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.executor == nil {
		c.executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	c.policy = c.executor.Policy()
	if c.chain == nil {
		c.chain = NewChain()
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = defaultUploadTimeout
	}
	if c.cache == nil {
		c.cache = cache.NewStore(cache.NewMemoryCache(nil), nil)
	}
	if c.statusTTL <= 0 {
		c.statusTTL = defaultStatusTTL
	}
	if c.healthTTL <= 0 {
		c.healthTTL = defaultHealthTTL
	}
	return c
}

func (c *Client) Interceptors() *Chain {
	return c.chain
}

func (c *Client) IsOnline() bool {
	return c.connectivity == nil || c.connectivity.Online()
}

func (c *Client) OfflineQueueLength() int {
	if c.queue == nil {
		return 0
	}
	return c.queue.Len()
}

func (c *Client) ClearCache(ctx context.Context) {
	c.cache.Clear(ctx)
}

// Execute performs exactly one attempt through the interceptor chain.
// Any non-2xx status is returned as a *domain.Failure.
func (c *Client) Execute(ctx context.Context, cfg RequestConfig) (*Response, error) {
	interceptors := c.chain.snapshot()

	cfg = cfg.Clone()
	cfg, err := applyRequest(ctx, interceptors, cfg)
	if err != nil {
		return c.recover(ctx, interceptors, domain.AsFailure(err))
	}

	resp, failure := c.roundTrip(ctx, cfg)
	if failure == nil {
		resp, err = applyResponse(ctx, interceptors, resp)
		if err == nil {
			return resp, nil
		}
		failure = domain.AsFailure(err)
	}
	return c.recover(ctx, interceptors, failure)
}

func (c *Client) recover(ctx context.Context, interceptors []Interceptor, failure *domain.Failure) (*Response, error) {
	resp, failure := applyError(ctx, interceptors, failure)
	if resp != nil {
		return resp, nil
	}
	return nil, failure
}

func (c *Client) roundTrip(ctx context.Context, cfg RequestConfig) (*Response, *domain.Failure) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = c.requestTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(attemptCtx); err != nil {
			return nil, c.transportFailure(ctx, err)
		}
	}

	payload := cfg.Body
	if cfg.NewBody != nil {
		built, err := cfg.NewBody()
		if err != nil {
			return nil, domain.NewFailure(domain.CodeUnknown, 0, "build request body", false).WithCause(err)
		}
		payload = built
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
		if cfg.Progress != nil {
			body = newProgressReader(body, int64(len(payload)), cfg.Progress)
		}
	}

	req, err := http.NewRequestWithContext(attemptCtx, cfg.Method, c.baseURL+cfg.Path, body)
	if err != nil {
		return nil, domain.NewFailure(domain.CodeUnknown, 0, "create request", false).WithCause(err)
	}
	req.Header = cfg.Header.Clone()
	if payload != nil {
		req.ContentLength = int64(len(payload))
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(ctx, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.transportFailure(ctx, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Request:    cfg,
	}
	if !resp.OK() {
		return nil, c.failureFromResponse(resp)
	}
	return resp, nil
}

// Do runs Execute under the retry policy. At most MaxRetries+1 attempts
// are made and the final failure is returned unchanged.
func (c *Client) Do(ctx context.Context, cfg RequestConfig) (*Response, error) {
	operation := cfg.operation()
	started := time.Now()

	var resp *Response
	err := c.executor.Execute(ctx, operation, func(ctx context.Context, attempt int) error {
		attemptCfg := cfg.Clone()
		attemptCfg.Metadata["attempt"] = strconv.Itoa(attempt)
		r, err := c.Execute(ctx, attemptCfg)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, c.classify)

	if err != nil {
		failure := finalFailure(err)
		c.observe(operation, string(failure.Code), started)
		return nil, failure
	}
	c.observe(operation, "ok", started)
	return resp, nil
}

func (c *Client) observe(operation, outcome string, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(operation, outcome, time.Since(started))
	}
}

// send routes a request through the offline queue while disconnected.
func (c *Client) send(ctx context.Context, cfg RequestConfig) (*Response, error) {
	if c.IsOnline() || c.queue == nil {
		return c.Do(ctx, cfg)
	}
	return c.deferUntilOnline(ctx, cfg)
}

func (c *Client) deferUntilOnline(ctx context.Context, cfg RequestConfig) (*Response, error) {
	var resp *Response
	done := c.queue.Enqueue(offline.Operation{
		Label: cfg.operation(),
		Run: func(context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := c.Do(ctx, cfg)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
	})

	select {
	case err := <-done:
		if err != nil {
			return nil, domain.AsFailure(err)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, domain.AsFailure(ctx.Err())
	}
}

// read serves GET requests. Cache-first reads return a fresh cached body
// when present; other reads only fall back to the cache while offline.
func (c *Client) read(ctx context.Context, cfg RequestConfig, ttl time.Duration, cacheFirst bool) ([]byte, error) {
	key := cfg.Path
	load := func(ctx context.Context) ([]byte, error) {
		resp, err := c.Do(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	if !c.IsOnline() {
		if data, ok := c.cache.Get(ctx, key); ok {
			return data, nil
		}
		if c.queue != nil {
			resp, err := c.deferUntilOnline(ctx, cfg)
			if err != nil {
				return nil, err
			}
			c.cache.Set(ctx, key, resp.Body, ttl)
			return resp.Body, nil
		}
	}

	var (
		data []byte
		err  error
	)
	if cacheFirst {
		data, err = c.cache.Fetch(ctx, key, ttl, load)
	} else {
		data, err = c.cache.Load(ctx, key, ttl, load)
	}
	if err != nil {
		return nil, domain.AsFailure(err)
	}
	return data, nil
}

// Ping probes /health with a single attempt and no interceptors.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500
}

package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"time"
)

// Policy decides whether a failed attempt is retried and how long to wait.
// Attempts are zero-based: attempt 0 is the first call.
type Policy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffFactor     float64
	RetryableStatuses []int
	RetryableCodes    []string
	// Jitter returns extra wait added to a computed delay. Nil disables jitter.
	Jitter func(delay time.Duration) time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffFactor:     2,
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
		RetryableCodes:    []string{"NETWORK_ERROR", "TIMEOUT", "CONNECTION_ERROR"},
		Jitter:            RandomJitter,
	}
}

// RandomJitter adds up to 30% of the delay.
func RandomJitter(delay time.Duration) time.Duration {
	return time.Duration(rand.Float64() * 0.3 * float64(delay))
}

func NoJitter(time.Duration) time.Duration {
	return 0
}

// Retryable reports whether the failure class is retryable at all,
// ignoring the attempt budget.
func (p Policy) Retryable(status int, code string) bool {
	if status > 0 && slices.Contains(p.RetryableStatuses, status) {
		return true
	}
	return code != "" && slices.Contains(p.RetryableCodes, code)
}

func (p Policy) ShouldRetry(status int, code string, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	return p.Retryable(status, code)
}

// Delay is min(BaseDelay*BackoffFactor^attempt + jitter, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if math.IsInf(base, 0) || math.IsNaN(base) || base >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	delay := time.Duration(base)
	if p.Jitter != nil {
		delay += p.Jitter(delay)
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p Policy) normalize() Policy {
	out := p
	def := DefaultPolicy()

	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = def.BaseDelay
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = def.MaxDelay
	}
	if out.MaxDelay < out.BaseDelay {
		out.MaxDelay = out.BaseDelay
	}
	if out.BackoffFactor < 1.0 {
		out.BackoffFactor = def.BackoffFactor
	}
	if out.RetryableStatuses == nil {
		out.RetryableStatuses = def.RetryableStatuses
	}
	if out.RetryableCodes == nil {
		out.RetryableCodes = def.RetryableCodes
	}
	return out
}

type Config struct {
	Retry Policy

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// Sleep waits between attempts; tests replace it to run instantly.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each retry wait.
	OnRetry func(operation string, attempt int, wait time.Duration, err error)
}

func DefaultConfig() Config {
	return Config{
		Retry: DefaultPolicy(),

		BreakerEnabled:          false,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	out.Retry = out.Retry.normalize()

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	if out.Sleep == nil {
		out.Sleep = Sleep
	}

	return out
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

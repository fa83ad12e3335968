package deskmirror

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Throttled is implemented by any error signaling that the upstream API
// rejected a call as rate-limited. internal/workspace's httpclient returns
// one such type on HTTP 429; RateGate.Execute detects it via this interface
// rather than a concrete type so the workspace package need not import
// deskmirror.
type Throttled interface {
	error
	RetryAfterHint() time.Duration
}

// ErrThrottled is a concrete Throttled, used directly by tests and by any
// in-process Workspace implementation.
type ErrThrottled struct {
	Method     string
	RetryAfter time.Duration
}

func (e *ErrThrottled) Error() string                  { return e.Method + ": rate limited upstream" }
func (e *ErrThrottled) RetryAfterHint() time.Duration { return e.RetryAfter }

// MethodLimits are the per-method token-bucket and concurrency defaults —
// spec.md §6's tier table.
type MethodLimits struct {
	RPM           int
	Burst         int
	MaxConcurrent int
}

// defaultMethodLimits is used for any method not named in methodTiers.
var defaultMethodLimits = MethodLimits{RPM: 50, Burst: 10, MaxConcurrent: 5}

// methodTiers are the exact per-method defaults from spec.md §6.
var methodTiers = map[string]MethodLimits{
	"conversations.list": {RPM: 20, Burst: 5, MaxConcurrent: 5},
	"channel.history":    {RPM: 50, Burst: 10, MaxConcurrent: 5},
	"thread.replies":     {RPM: 50, Burst: 10, MaxConcurrent: 5},
	"user.info":          {RPM: 100, Burst: 20, MaxConcurrent: 5},
	"user.list":          {RPM: 20, Burst: 5, MaxConcurrent: 5},
	"search.messages":    {RPM: 20, Burst: 5, MaxConcurrent: 5},
	"reminders.list":     {RPM: 20, Burst: 5, MaxConcurrent: 5},
	"auth.test":          {RPM: 100, Burst: 20, MaxConcurrent: 5},
}

// RetryConfig controls RateGate's backoff-and-retry behavior on ErrThrottled.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction, e.g. 0.5 for ±50%
}

// DefaultRetryConfig matches spec.md §6: base 1s, cap 60s, jitter 0.5, 3 attempts.
var DefaultRetryConfig = RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 60 * time.Second, Jitter: 0.5}

// tokenBucket is a lazily-refilled token bucket, one per upstream method.
// Grounded in original_source's TokenBucket (rate_limiter.py) and the
// teacher's sliding-window rate limiter (ratelimit.go), reshaped to the
// classic capacity+refill-rate model spec.md §4.1 specifies.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens/sec
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity float64, rpm int) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		refillRate: float64(rpm) / 60.0,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// acquire blocks (sleeping outside any lock) until a token is available.
func (b *tokenBucket) acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(b.lastRefill).Seconds()
		b.tokens = min64(b.capacity, b.tokens+elapsed*b.refillRate)
		b.lastRefill = now
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// methodGate bundles one method's token bucket and concurrency semaphore.
type methodGate struct {
	bucket *tokenBucket
	sem    chan struct{}
}

// RateGate throttles calls to the upstream workspace API: a per-method
// token bucket plus concurrency semaphore plus retry-with-backoff honoring
// Retry-After, per spec.md §4.1. Process-wide and shared across components.
type RateGate struct {
	mu      sync.Mutex
	gates   map[string]*methodGate
	retry   RetryConfig
	logger  *slog.Logger
	onRetry func(method string)
}

// RateGateOption configures optional RateGate behavior.
type RateGateOption func(*RateGate)

// WithOnRetry registers a callback invoked once per retry-after wait, right
// where Execute already logs the retry. cmd/syncd uses this to record
// Instruments.RateLimitWaits without Execute needing to know telemetry
// exists — RateGate stays importable by internal/workspace-adjacent code
// with no OTEL dependency.
func WithOnRetry(fn func(method string)) RateGateOption {
	return func(g *RateGate) { g.onRetry = fn }
}

// NewRateGate constructs a RateGate. Pass nil for logger to use a discard logger.
func NewRateGate(retry RetryConfig, logger *slog.Logger, opts ...RateGateOption) *RateGate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &RateGate{gates: make(map[string]*methodGate), retry: retry, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *RateGate) gateFor(method string) *methodGate {
	g.mu.Lock()
	defer g.mu.Unlock()
	if mg, ok := g.gates[method]; ok {
		return mg
	}
	lim, ok := methodTiers[method]
	if !ok {
		lim = defaultMethodLimits
	}
	mg := &methodGate{
		bucket: newTokenBucket(float64(lim.Burst), lim.RPM),
		sem:    make(chan struct{}, lim.MaxConcurrent),
	}
	g.gates[method] = mg
	return mg
}

// Execute runs fn under method's rate gate: acquire a token (may sleep),
// then acquire the concurrency semaphore, then call fn. On ErrThrottled,
// retries with exponential backoff honoring any Retry-After hint, up to
// retry.MaxAttempts; after exhaustion returns *ErrRateLimitExceeded.
// Non-throttled errors from fn propagate immediately, no retry. Token
// acquisition happens before the semaphore so throttled calls never hold a
// concurrency slot while sleeping.
//
// Execute is a free function, not a method, because Go methods cannot carry
// their own type parameters — mirrors the teacher's retryCall[T any] shape.
func Execute[T any](ctx context.Context, g *RateGate, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	mg := g.gateFor(method)

	for attempt := 0; ; attempt++ {
		if err := mg.bucket.acquire(ctx); err != nil {
			return zero, err
		}

		select {
		case mg.sem <- struct{}{}:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		<-mg.sem

		var throttled Throttled
		if err == nil || !errors.As(err, &throttled) {
			return result, err
		}
		if attempt+1 >= g.retry.MaxAttempts {
			return zero, &ErrRateLimitExceeded{Method: method, Attempts: attempt + 1}
		}
		g.logger.WarnContext(ctx, "rate limited, retrying", "method", method, "attempt", attempt+1)
		if g.onRetry != nil {
			g.onRetry(method)
		}

		delay := g.retryDelay(attempt, throttled.RetryAfterHint())
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay computes the next backoff: Retry-After if present, else
// base·2^attempt with ±jitter, capped at MaxDelay.
func (g *RateGate) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	backoff := g.retry.BaseDelay * time.Duration(int64(1)<<uint(attempt))
	if backoff > g.retry.MaxDelay {
		backoff = g.retry.MaxDelay
	}
	if g.retry.Jitter > 0 {
		j := (rand.Float64()*2 - 1) * g.retry.Jitter
		backoff = time.Duration(float64(backoff) * (1 + j))
		if backoff < 0 {
			backoff = 0
		}
	}
	if backoff > g.retry.MaxDelay {
		backoff = g.retry.MaxDelay
	}
	return backoff
}

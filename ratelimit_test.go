package deskmirror

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scenario 1 from spec.md §8: throttled retry.
func TestRateGateThrottledRetry(t *testing.T) {
	g := NewRateGate(RetryConfig{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Jitter: 0}, nil)
	methodTiers["test.throttled"] = MethodLimits{RPM: 60, Burst: 5, MaxConcurrent: 5}

	var calls int32
	fn := func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "", &ErrThrottled{Method: "test.throttled", RetryAfter: 10 * time.Millisecond}
		}
		return "ok", nil
	}

	result, err := Execute(context.Background(), g, "test.throttled", fn)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "ok" {
		t.Fatalf("result = %q, want ok", result)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRateGateExhaustsAfterMaxAttempts(t *testing.T) {
	g := NewRateGate(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Jitter: 0}, nil)
	methodTiers["test.alwaysthrottled"] = MethodLimits{RPM: 60, Burst: 5, MaxConcurrent: 5}

	fn := func(ctx context.Context) (string, error) {
		return "", &ErrThrottled{Method: "test.alwaysthrottled"}
	}

	_, err := Execute(context.Background(), g, "test.alwaysthrottled", fn)
	var exceeded *ErrRateLimitExceeded
	if err == nil {
		t.Fatal("expected ErrRateLimitExceeded")
	}
	if !asRateLimitExceeded(err, &exceeded) {
		t.Fatalf("err = %v, want *ErrRateLimitExceeded", err)
	}
	if exceeded.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", exceeded.Attempts)
	}
}

func asRateLimitExceeded(err error, target **ErrRateLimitExceeded) bool {
	if e, ok := err.(*ErrRateLimitExceeded); ok {
		*target = e
		return true
	}
	return false
}

// scenario 2 from spec.md §8: concurrency cap.
func TestRateGateConcurrencyCap(t *testing.T) {
	g := NewRateGate(DefaultRetryConfig, nil)
	methodTiers["test.concurrency"] = MethodLimits{RPM: 100000, Burst: 100, MaxConcurrent: 2}

	var mu sync.Mutex
	current, peak := 0, 0
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Execute(context.Background(), g, "test.concurrency", func(ctx context.Context) (struct{}, error) {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()

				time.Sleep(50 * time.Millisecond)

				mu.Lock()
				current--
				mu.Unlock()
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
	if elapsed < 125*time.Millisecond {
		t.Fatalf("elapsed = %v, want >= 125ms (5 calls / 2 concurrent * 50ms)", elapsed)
	}
}

func TestTokenBucketRespectsRPM(t *testing.T) {
	b := newTokenBucket(1, 600) // 10 tokens/sec
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := b.acquire(ctx); err != nil {
			t.Fatal(err)
		}
	}
	elapsed := time.Since(start)
	// first token is free (bucket starts full), remaining 4 cost ~100ms each at 10/s
	if elapsed < 350*time.Millisecond {
		t.Fatalf("elapsed = %v, too fast for configured refill rate", elapsed)
	}
}

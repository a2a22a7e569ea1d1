package ratelimit

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

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBucket(clock *fakeClock, capacity, refill int, interval time.Duration) *TokenBucket {
	return NewTokenBucket(BucketConfig{
		Capacity:     capacity,
		RefillTokens: refill,
		Interval:     interval,
		Clock:        clock.Now,
	})
}

func TestTokenBucketExhaustsAfterCapacity(t *testing.T) {
	clock := newFakeClock()
	tb := newTestBucket(clock, 100, 100, time.Minute)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		d := tb.TryConsume(ctx, "10.0.0.1")
		if !d.Allowed {
			t.Fatalf("request %d unexpectedly denied: %+v", i+1, d)
		}
		if d.Remaining != 99-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, 99-i, d.Remaining)
		}
	}

	denied := tb.TryConsume(ctx, "10.0.0.1")
	if denied.Allowed {
		t.Fatalf("expected 101st request to be denied: %+v", denied)
	}
	if denied.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", denied.Remaining)
	}
	if denied.RetryAfter < 0 {
		t.Fatalf("retry after must be non-negative, got %d", denied.RetryAfter)
	}
	// 1 token at 100/60s takes 0.6s, rounded down
	if denied.RetryAfter != 0 {
		t.Fatalf("expected retry after 0s, got %d", denied.RetryAfter)
	}
}

func TestTokenBucketRetryAfterRoundsDown(t *testing.T) {
	clock := newFakeClock()
	tb := newTestBucket(clock, 2, 1, 10*time.Second)
	ctx := context.Background()

	tb.TryConsume(ctx, "k")
	tb.TryConsume(ctx, "k")

	d := tb.TryConsume(ctx, "k")
	if d.Allowed {
		t.Fatalf("expected denial, got %+v", d)
	}
	if d.RetryAfter != 10 {
		t.Fatalf("expected 10s retry, got %d", d.RetryAfter)
	}

	clock.Advance(2500 * time.Millisecond)
	d = tb.TryConsume(ctx, "k")
	if d.Allowed {
		t.Fatalf("expected denial after partial refill, got %+v", d)
	}
	// 0.25 tokens accrued, 0.75 missing at 0.1 token/s = 7.5s
	if d.RetryAfter != 7 {
		t.Fatalf("expected 7s retry, got %d", d.RetryAfter)
	}
}

func TestTokenBucketRefillAndClamp(t *testing.T) {
	clock := newFakeClock()
	tb := newTestBucket(clock, 10, 10, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		tb.TryConsume(ctx, "k")
	}
	if got := tb.Tokens("k"); got != 0 {
		t.Fatalf("expected empty bucket, got %v", got)
	}

	clock.Advance(3 * time.Second)
	d := tb.TryConsume(ctx, "k")
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("expected allowed with 2 remaining after 3s, got %+v", d)
	}

	clock.Advance(time.Hour)
	if got := tb.Tokens("k"); got != 10 {
		t.Fatalf("expected refill clamped at capacity 10, got %v", got)
	}

	d = tb.TryConsume(ctx, "k")
	if d.Remaining != 9 {
		t.Fatalf("expected 9 remaining after clamp, got %+v", d)
	}
}

func TestTokenBucketClockGoingBackwards(t *testing.T) {
	clock := newFakeClock()
	tb := newTestBucket(clock, 5, 5, time.Second)
	ctx := context.Background()

	tb.TryConsume(ctx, "k")
	clock.Advance(-time.Minute)
	d := tb.TryConsume(ctx, "k")
	if !d.Allowed || d.Remaining != 3 {
		t.Fatalf("backwards clock must not add or remove tokens, got %+v", d)
	}
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	tb := newTestBucket(clock, 1, 1, time.Minute)
	ctx := context.Background()

	if d := tb.TryConsume(ctx, "a"); !d.Allowed {
		t.Fatalf("first request for a denied: %+v", d)
	}
	if d := tb.TryConsume(ctx, "a"); d.Allowed {
		t.Fatalf("second request for a allowed: %+v", d)
	}
	if d := tb.TryConsume(ctx, "b"); !d.Allowed {
		t.Fatalf("b must have its own bucket: %+v", d)
	}
}

func TestTokenBucketConcurrentConsumers(t *testing.T) {
	clock := newFakeClock()
	tb := newTestBucket(clock, 100, 100, time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				d := tb.TryConsume(ctx, "shared")
				if d.Remaining < 0 || d.Remaining > 100 {
					t.Errorf("remaining out of range: %+v", d)
				}
				if d.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Fatalf("expected exactly 100 allowed across goroutines, got %d", allowed)
	}
}

func TestTokenBucketSweep(t *testing.T) {
	clock := newFakeClock()
	tb := newTestBucket(clock, 10, 10, 10*time.Second)
	ctx := context.Background()

	tb.TryConsume(ctx, "idle")
	tb.TryConsume(ctx, "busy")
	if tb.Size() != 2 {
		t.Fatalf("expected 2 buckets, got %d", tb.Size())
	}

	clock.Advance(5 * time.Second)
	tb.TryConsume(ctx, "busy")
	clock.Advance(6 * time.Second)

	if removed := tb.Sweep(); removed != 1 {
		t.Fatalf("expected 1 bucket swept, got %d", removed)
	}
	if tb.Size() != 1 {
		t.Fatalf("expected busy bucket to remain, got size %d", tb.Size())
	}

	d := tb.TryConsume(ctx, "idle")
	if !d.Allowed || d.Remaining != 9 {
		t.Fatalf("swept key must behave like a fresh bucket, got %+v", d)
	}
}

func TestTokenBucketStopIsIdempotent(t *testing.T) {
	tb := NewTokenBucket(BucketConfig{})
	tb.StartSweeper(time.Millisecond)
	tb.Stop()
	tb.Stop()

	if tb.Limit() != 100 {
		t.Fatalf("expected default capacity 100, got %d", tb.Limit())
	}
}

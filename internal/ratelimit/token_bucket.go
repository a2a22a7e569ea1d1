package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket is an in-process limiter holding one bucket per key. Buckets
// are created full on first use and each one carries its own mutex, so
// unrelated keys never contend.
type TokenBucket struct {
	capacity float64
	rate     float64 // tokens per second
	buckets  sync.Map
	now      func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	evicted    bool
}

type BucketConfig struct {
	Capacity     int
	RefillTokens int
	Interval     time.Duration
	Clock        func() time.Time
}

func NewTokenBucket(cfg BucketConfig) *TokenBucket {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.RefillTokens <= 0 {
		cfg.RefillTokens = cfg.Capacity
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &TokenBucket{
		capacity: float64(cfg.Capacity),
		rate:     float64(cfg.RefillTokens) / cfg.Interval.Seconds(),
		now:      cfg.Clock,
		stopChan: make(chan struct{}),
	}
}

func (t *TokenBucket) TryConsume(ctx context.Context, key string) Decision {
	for {
		b := t.load(key)

		b.mu.Lock()
		if b.evicted {
			// Swept between load and lock, start over with a fresh bucket
			b.mu.Unlock()
			continue
		}

		t.refill(b)

		decision := Decision{Limit: int(t.capacity)}
		if b.tokens >= 1 {
			b.tokens--
			decision.Allowed = true
		} else {
			decision.RetryAfter = t.secondsUntilToken(b.tokens)
		}
		decision.Remaining = int(math.Floor(b.tokens))
		b.mu.Unlock()

		return decision
	}
}

func (t *TokenBucket) Limit() int {
	return int(t.capacity)
}

// Tokens reports the current balance for key without consuming.
func (t *TokenBucket) Tokens(key string) float64 {
	v, ok := t.buckets.Load(key)
	if !ok {
		return t.capacity
	}
	b := v.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	t.refill(b)
	return b.tokens
}

func (t *TokenBucket) load(key string) *bucket {
	if v, ok := t.buckets.Load(key); ok {
		return v.(*bucket)
	}
	v, _ := t.buckets.LoadOrStore(key, &bucket{
		tokens:     t.capacity,
		lastRefill: t.now(),
	})
	return v.(*bucket)
}

// refill must be called with b.mu held
func (t *TokenBucket) refill(b *bucket) {
	now := t.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		// Clock went backwards or no time passed, never remove tokens
		return
	}
	b.tokens = math.Min(b.tokens+elapsed*t.rate, t.capacity)
	b.lastRefill = now
}

func (t *TokenBucket) secondsUntilToken(tokens float64) int {
	deficit := 1 - tokens
	if deficit <= 0 {
		return 0
	}
	return int(math.Floor(deficit / t.rate))
}

// fullAfter is how long an untouched bucket needs to refill completely
func (t *TokenBucket) fullAfter() time.Duration {
	return time.Duration(t.capacity / t.rate * float64(time.Second))
}

// Sweep drops buckets that would be full by now. A full bucket behaves
// exactly like a missing one, so eviction is invisible to callers.
func (t *TokenBucket) Sweep() int {
	now := t.now()
	idle := t.fullAfter()
	removed := 0

	t.buckets.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if !b.evicted && now.Sub(b.lastRefill) >= idle {
			b.evicted = true
			t.buckets.CompareAndDelete(key, b)
			removed++
		}
		b.mu.Unlock()
		return true
	})

	return removed
}

// Size returns the number of tracked keys
func (t *TokenBucket) Size() int {
	n := 0
	t.buckets.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// StartSweeper runs Sweep every interval until Stop is called
func (t *TokenBucket) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.Sweep()
			case <-t.stopChan:
				return
			}
		}
	}()
}

func (t *TokenBucket) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
}

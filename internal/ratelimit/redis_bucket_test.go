package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/aman-churiwal/leetquery/internal/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisTokenBucket(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := storage.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	clock := newFakeClock()
	limiter := NewRedisTokenBucket(client, "query", BucketConfig{
		Capacity:     3,
		RefillTokens: 3,
		Interval:     30 * time.Second,
		Clock:        clock.Now,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := limiter.TryConsume(ctx, "10.0.0.1")
		if !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("request %d: unexpected decision %+v", i+1, d)
		}
	}

	denied := limiter.TryConsume(ctx, "10.0.0.1")
	if denied.Allowed || denied.Remaining != 0 {
		t.Fatalf("expected denial, got %+v", denied)
	}
	if denied.RetryAfter != 10 {
		t.Fatalf("expected 10s retry after, got %d", denied.RetryAfter)
	}

	if !mr.Exists("ratelimit:bucket:query:10.0.0.1") {
		t.Fatalf("expected bucket state stored in redis")
	}

	clock.Advance(10 * time.Second)
	if d := limiter.TryConsume(ctx, "10.0.0.1"); !d.Allowed {
		t.Fatalf("expected refill after 10s, got %+v", d)
	}

	if d := limiter.TryConsume(ctx, "10.0.0.2"); !d.Allowed || d.Remaining != 2 {
		t.Fatalf("other key must start full, got %+v", d)
	}
}

func TestRedisTokenBucketFallsBackWhenUnavailable(t *testing.T) {
	client := storage.NewRedisFromClient(redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  5 * time.Millisecond,
		ReadTimeout:  5 * time.Millisecond,
		WriteTimeout: 5 * time.Millisecond,
		MaxRetries:   -1,
	}))
	limiter := NewRedisTokenBucket(client, "default", BucketConfig{
		Capacity:     1,
		RefillTokens: 1,
		Interval:     time.Minute,
	})
	ctx := context.Background()

	if d := limiter.TryConsume(ctx, "k"); !d.Allowed {
		t.Fatalf("fallback bucket should allow first request, got %+v", d)
	}
	if d := limiter.TryConsume(ctx, "k"); d.Allowed {
		t.Fatalf("fallback bucket should deny second request, got %+v", d)
	}
}

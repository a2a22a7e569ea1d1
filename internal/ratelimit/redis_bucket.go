package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/leetquery/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// tokenBucketScript refills and consumes in one round trip so concurrent
// gateway instances never race on the same key.
//
// KEYS[1] bucket hash
// ARGV[1] capacity, ARGV[2] rate in tokens per millisecond,
// ARGV[3] now in ms, ARGV[4] ttl in ms
// Returns {allowed, floor(tokens), retry_ms}
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "last")
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local elapsed = now - last
if elapsed > 0 then
  tokens = math.min(capacity, tokens + elapsed * rate)
  last = now
end

local allowed = 0
local retry = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  retry = math.ceil((1 - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "last", tostring(last))
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens), retry}
`)

// RedisTokenBucket shares bucket state between gateway instances. If Redis
// is unreachable the decision comes from an in-process bucket instead.
type RedisTokenBucket struct {
	redis    *storage.RedisClient
	name     string
	capacity int
	rate     float64 // tokens per second
	ttl      time.Duration
	now      func() time.Time
	fallback *TokenBucket
}

func NewRedisTokenBucket(redis *storage.RedisClient, name string, cfg BucketConfig) *RedisTokenBucket {
	fallback := NewTokenBucket(cfg)
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &RedisTokenBucket{
		redis:    redis,
		name:     name,
		capacity: int(fallback.capacity),
		rate:     fallback.rate,
		// Past this point an untouched bucket is full, same as absent
		ttl:      fallback.fullAfter() + time.Second,
		now:      cfg.Clock,
		fallback: fallback,
	}
}

func (t *RedisTokenBucket) TryConsume(ctx context.Context, key string) Decision {
	redisKey := fmt.Sprintf("ratelimit:bucket:%s:%s", t.name, key)

	res, err := tokenBucketScript.Run(ctx, t.redis.Client, []string{redisKey},
		t.capacity,
		t.rate/1000,
		t.now().UnixMilli(),
		t.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil || len(res) < 3 {
		log.Warn().Err(err).Str("policy", t.name).Msg("redis rate limit unavailable, using local bucket")
		return t.fallback.TryConsume(ctx, key)
	}

	remaining := int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	if remaining > t.capacity {
		remaining = t.capacity
	}

	decision := Decision{
		Allowed:   res[0] == 1,
		Limit:     t.capacity,
		Remaining: remaining,
	}
	if !decision.Allowed {
		// Lua rounds the wait up to whole ms; report whole seconds rounded down
		decision.RetryAfter = int(time.Duration(res[2]) * time.Millisecond / time.Second)
	}

	return decision
}

func (t *RedisTokenBucket) Limit() int {
	return t.capacity
}

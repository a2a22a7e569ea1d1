package ratelimit

import (
	"strings"
	"time"

	"github.com/aman-churiwal/leetquery/internal/config"
	"github.com/aman-churiwal/leetquery/internal/storage"
)

const (
	PolicyDefault = "default"
	PolicyStrict  = "strict"
	PolicyQuery   = "query"
)

// Policies holds one limiter per named policy and picks one per path.
type Policies struct {
	limiters map[string]Limiter
	local    []*TokenBucket
	excluded []string
}

func NewLimiter(redis *storage.RedisClient, store, name string, p config.Policy) (Limiter, *TokenBucket) {
	cfg := BucketConfig{
		Capacity:     p.Capacity,
		RefillTokens: p.RefillTokens,
		Interval:     p.Interval,
	}

	switch store {
	case "redis":
		if redis != nil {
			rb := NewRedisTokenBucket(redis, name, cfg)
			return rb, rb.fallback
		}
		fallthrough
	default:
		tb := NewTokenBucket(cfg)
		return tb, tb
	}
}

func NewPolicies(cfg config.RateLimitConfig, redis *storage.RedisClient) *Policies {
	p := &Policies{
		limiters: make(map[string]Limiter),
		excluded: cfg.ExcludedPaths,
	}

	for name, policy := range map[string]config.Policy{
		PolicyDefault: cfg.Default,
		PolicyStrict:  cfg.Strict,
		PolicyQuery:   cfg.Query,
	} {
		limiter, local := NewLimiter(redis, cfg.Store, name, policy)
		p.limiters[name] = limiter
		p.local = append(p.local, local)
	}

	return p
}

// PolicyFor maps a request path to its policy name
func PolicyFor(path string) string {
	switch {
	case strings.HasPrefix(path, "/query"), path == "/executeQuery":
		return PolicyQuery
	case strings.HasPrefix(path, "/auth"), strings.HasPrefix(path, "/admin"):
		return PolicyStrict
	default:
		return PolicyDefault
	}
}

// For returns the limiter and policy name for path
func (p *Policies) For(path string) (Limiter, string) {
	name := PolicyFor(path)
	return p.limiters[name], name
}

// Excluded reports whether path bypasses rate limiting entirely. Entries
// starting with "/" match that path and everything below it; entries
// starting with "." are file extensions and only exempt requests that did
// not hit an API route.
func (p *Policies) Excluded(path string, routed bool) bool {
	for _, ex := range p.excluded {
		switch {
		case strings.HasPrefix(ex, "/"):
			prefix := strings.TrimSuffix(ex, "/")
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		case strings.HasPrefix(ex, "."):
			if !routed && strings.HasSuffix(path, ex) {
				return true
			}
		}
	}
	return false
}

func (p *Policies) StartSweepers(interval time.Duration) {
	for _, tb := range p.local {
		tb.StartSweeper(interval)
	}
}

func (p *Policies) Stop() {
	for _, tb := range p.local {
		tb.Stop()
	}
}

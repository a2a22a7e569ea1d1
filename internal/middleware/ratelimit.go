package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/aman-churiwal/leetquery/internal/metrics"
	"github.com/aman-churiwal/leetquery/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	HeaderRateLimitRemaining  = "X-Rate-Limit-Remaining"
	HeaderRateLimitRetryAfter = "X-Rate-Limit-Retry-After-Seconds"
)

// RateLimit spends one token from the caller's bucket in the policy that
// matches the request path. Excluded paths are never counted.
func RateLimit(policies *ratelimit.Policies) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if policies.Excluded(path, c.FullPath() != "") {
			c.Next()
			return
		}

		limiter, policy := policies.For(path)
		key := ratelimit.ClientKey(c.Request)

		decision := limiter.TryConsume(c.Request.Context(), key)
		metrics.RecordRateLimit(policy, decision.Allowed)

		if !decision.Allowed {
			log.Warn().
				Str("client", key).
				Str("policy", policy).
				Str("path", path).
				Int("retry_after", decision.RetryAfter).
				Msg("rate limit exceeded")

			retry := strconv.Itoa(decision.RetryAfter)
			c.Header(HeaderRateLimitRetryAfter, retry)
			c.Header("Retry-After", retry)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "Rate limit exceeded",
				"retry_after_seconds": decision.RetryAfter,
				"message":             fmt.Sprintf("Too many requests. Please try again after %d seconds", decision.RetryAfter),
			})
			return
		}

		c.Header(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
		c.Next()
	}
}

package ratelimit

import (
	"context"
)

// Decision is the outcome of one TryConsume call. A denial is a normal
// return value, never an error.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // whole seconds until one token is available, 0 when allowed
}

type Limiter interface {
	TryConsume(ctx context.Context, key string) Decision

	Limit() int
}

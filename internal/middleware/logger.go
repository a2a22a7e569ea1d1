package middleware

import (
	"time"

	"github.com/aman-churiwal/leetquery/internal/metrics"
	"github.com/aman-churiwal/leetquery/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordHTTPRequest(method, c.FullPath(), statusCode, latency)

		var event *zerolog.Event
		switch {
		case statusCode >= 500:
			event = log.Error()
		case statusCode >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event.
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client", ratelimit.ClientKey(c.Request)).
			Msg("request")
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/aman-churiwal/leetquery/internal/auth"
	"github.com/aman-churiwal/leetquery/internal/metrics"
	"github.com/aman-churiwal/leetquery/internal/query"
	"github.com/aman-churiwal/leetquery/internal/service"
	"github.com/aman-churiwal/leetquery/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError maps an error to its HTTP status. Unknown errors are logged
// and answered with a generic 500.
func respondError(c *gin.Context, err error) {
	var verr *validation.Error

	switch {
	case errors.As(err, &verr):
		metrics.RecordValidationFailure(verr.Field)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"field":   verr.Field,
			"message": verr.Message,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "Invalid username or password"})
	case errors.Is(err, auth.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "Invalid or expired token"})
	case errors.Is(err, service.ErrAccountDisabled), errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden", "message": err.Error()})
	case errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflict", "message": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found", "message": err.Error()})
	case errors.Is(err, query.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Service Unavailable",
			"message": "The query database is temporarily unavailable. Please try again later.",
		})
	default:
		log.Error().Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "An unexpected error occurred",
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": message})
}

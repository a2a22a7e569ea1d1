package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aman-churiwal/leetquery/internal/auth"
	"github.com/aman-churiwal/leetquery/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

// RequireAuth resolves the bearer token and stores the identity in context
func RequireAuth(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			abortAuth(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole is RequireAuth plus a role check
func RequireRole(resolver *auth.Resolver, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.Authorize(c.Request.Context(), c.GetHeader("Authorization"), role)
		if err != nil {
			abortAuth(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// OptionalAuth attaches an identity when a valid token is presented and
// otherwise lets the request through anonymously
func OptionalAuth(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), header)
		if err == nil {
			c.Set(identityKey, identity)
		} else if !errors.Is(err, auth.ErrUnauthorized) {
			log.Warn().Err(err).Msg("optional identity lookup failed")
		}

		c.Next()
	}
}

// GetIdentity returns the identity set by one of the auth middlewares
func GetIdentity(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*auth.Identity)
	return identity
}

func abortAuth(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		metrics.RecordAuthFailure("unauthorized")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": publicMessage(err, auth.ErrUnauthorized),
		})
	case errors.Is(err, auth.ErrForbidden):
		metrics.RecordAuthFailure("forbidden")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Forbidden",
			"message": publicMessage(err, auth.ErrForbidden),
		})
	default:
		log.Error().Err(err).Str("request_id", c.GetString(requestIDKey)).Msg("identity resolution failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "An unexpected error occurred",
		})
	}
}

// publicMessage strips the sentinel prefix from wrapped auth errors
func publicMessage(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" || msg == sentinel.Error() {
		return "Access denied"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

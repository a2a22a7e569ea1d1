package auth

import (
	"context"

	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// RoleHint decodes the token payload WITHOUT verifying its signature and
// reports the role on record for its subject. Anyone can forge the input,
// so the answer is only fit for deciding what a UI shows. It returns USER
// on any failure and must never gate a state change.
func RoleHint(ctx context.Context, roles RoleStore, header string) string {
	raw, err := BearerToken(header)
	if err != nil {
		return models.RoleUser
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return models.RoleUser
	}
	if claims.Subject == "" {
		return models.RoleUser
	}

	role, err := roles.FindRole(ctx, claims.Subject)
	if err != nil {
		log.Debug().Err(err).Msg("role hint lookup failed")
		return models.RoleUser
	}

	return NormalizeRole(role)
}

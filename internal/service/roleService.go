package service

import (
	"context"
	"strings"

	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/validation"
	"github.com/rs/zerolog/log"
)

type RoleWriter interface {
	SetRole(ctx context.Context, subject, role string) error
}

// Implemented by caches sitting in front of the role store
type RoleInvalidator interface {
	Invalidate(ctx context.Context, subject string) error
}

type RoleService struct {
	writer RoleWriter
	cache  RoleInvalidator
}

func NewRoleService(writer RoleWriter, cache RoleInvalidator) *RoleService {
	return &RoleService{writer: writer, cache: cache}
}

// Grant records role for subject. Only USER and ADMIN are accepted.
func (s *RoleService) Grant(ctx context.Context, actor, subject, role string) (string, error) {
	if err := (validation.Rule{Field: "subject", Max: 64, Injection: true, Markup: true}).Check(subject); err != nil {
		return "", err
	}

	role = strings.ToUpper(strings.TrimSpace(role))
	if role != models.RoleUser && role != models.RoleAdmin {
		return "", &validation.Error{Field: "role", Message: "role must be USER or ADMIN"}
	}

	if err := s.writer.SetRole(ctx, subject, role); err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, subject); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("failed to invalidate role cache")
		}
	}

	log.Info().Str("actor", actor).Str("subject", subject).Str("role", role).Msg("role granted")
	return role, nil
}

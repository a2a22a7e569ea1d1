package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aman-churiwal/leetquery/internal/models"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// RoleStore looks up the role granted to a subject. It returns "" with a
// nil error when no grant exists.
type RoleStore interface {
	FindRole(ctx context.Context, subject string) (string, error)
}

type Identity struct {
	Subject  string `json:"subject"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == models.RoleAdmin
}

// Resolver turns an Authorization header into a verified identity.
type Resolver struct {
	tokens *TokenManager
	roles  RoleStore
}

func NewResolver(tokens *TokenManager, roles RoleStore) *Resolver {
	return &Resolver{tokens: tokens, roles: roles}
}

// BearerToken strips the "Bearer " prefix from header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: authorization header required", ErrUnauthorized)
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: invalid authorization header format, use: Bearer <token>", ErrUnauthorized)
	}

	return strings.TrimSpace(token), nil
}

// Resolve verifies the access token in header and resolves the subject's
// role. A subject without a role grant resolves to USER. Errors wrap
// ErrUnauthorized unless the role lookup itself failed.
func (r *Resolver) Resolve(ctx context.Context, header string) (*Identity, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	claims, state, err := r.tokens.Verify(raw, KindAccess)
	if state != StateValid {
		if errors.Is(err, ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	role, err := r.roles.FindRole(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("role lookup for %s: %w", claims.Subject, err)
	}

	return &Identity{
		Subject:  claims.Subject,
		Username: claims.Username,
		Role:     NormalizeRole(role),
	}, nil
}

// Authorize resolves header and requires the given role.
func (r *Resolver) Authorize(ctx context.Context, header, role string) (*Identity, error) {
	identity, err := r.Resolve(ctx, header)
	if err != nil {
		return nil, err
	}

	if identity.Role != role {
		return identity, fmt.Errorf("%w: %s role required", ErrForbidden, role)
	}

	return identity, nil
}

// NormalizeRole maps anything other than an ADMIN grant to USER.
func NormalizeRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), models.RoleAdmin) {
		return models.RoleAdmin
	}
	return models.RoleUser
}

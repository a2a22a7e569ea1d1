package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aman-churiwal/leetquery/internal/auth"
	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/validation"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("user already exists")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// UserStore is the persistence AuthService needs
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

type AuthService struct {
	users  UserStore
	roles  auth.RoleStore
	tokens *auth.TokenManager
	cost   int
}

func NewAuthService(users UserStore, roles auth.RoleStore, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		users:  users,
		roles:  roles,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
	}
}

type RegisterInput struct {
	Username        string `json:"username" binding:"required,min=3,max=50,username"`
	Email           string `json:"email" binding:"required,max=255,email"`
	Password        string `json:"password" binding:"required,min=8,max=128,password"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required,eqfield=Password"`
	FirstName       string `json:"firstName" binding:"omitempty,max=100"`
	LastName        string `json:"lastName" binding:"omitempty,max=100"`
}

type UserInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role"`
}

type AuthResult struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         UserInfo `json:"user"`
}

// Creates a USER account and signs the caller in
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.FirstName != "" {
		if err := validation.Field(in.FirstName, "firstName", 100, true); err != nil {
			return nil, err
		}
	}
	if in.LastName != "" {
		if err := validation.Field(in.LastName, "lastName", 100, true); err != nil {
			return nil, err
		}
	}

	existing, err := s.users.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: username already exists", ErrUserExists)
	}

	existing, err = s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", ErrUserExists)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hashedPassword),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsEnabled:    true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("user registered")

	return s.issue(user, models.RoleUser, true)
}

// Authenticates by username or email
func (s *AuthService) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	login = strings.TrimSpace(login)
	if err := validation.NotBlank(login, "usernameOrEmail"); err != nil {
		return nil, err
	}
	if err := validation.NotBlank(password, "password"); err != nil {
		return nil, err
	}

	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsEnabled {
		return nil, ErrAccountDisabled
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID.String(), time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record last login")
	}

	role, err := s.roles.FindRole(ctx, user.ID.String())
	if err != nil {
		return nil, err
	}

	return s.issue(user, auth.NormalizeRole(role), true)
}

// Exchanges a refresh token for a new access token. The refresh token
// itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, state, _ := s.tokens.Verify(refreshToken, auth.KindRefresh)
	if state != auth.StateValid {
		return nil, fmt.Errorf("%w: invalid or expired refresh token", auth.ErrUnauthorized)
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsEnabled {
		return nil, fmt.Errorf("%w: user not found", auth.ErrUnauthorized)
	}

	role, err := s.roles.FindRole(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	result, err := s.issue(user, auth.NormalizeRole(role), false)
	if err != nil {
		return nil, err
	}
	result.RefreshToken = refreshToken

	return result, nil
}

// Me returns the profile behind an already resolved identity
func (s *AuthService) Me(ctx context.Context, identity *auth.Identity) (*UserInfo, error) {
	user, err := s.users.FindByID(ctx, identity.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user not found", auth.ErrUnauthorized)
	}

	info := userInfo(user, identity.Role)
	return &info, nil
}

func (s *AuthService) issue(user *models.User, role string, withRefresh bool) (*AuthResult, error) {
	subject := user.ID.String()

	access, _, err := s.tokens.Issue(subject, user.Username, auth.KindAccess)
	if err != nil {
		return nil, err
	}

	result := &AuthResult{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
		User:        userInfo(user, role),
	}

	if withRefresh {
		refresh, _, err := s.tokens.Issue(subject, user.Username, auth.KindRefresh)
		if err != nil {
			return nil, err
		}
		result.RefreshToken = refresh
	}

	return result, nil
}

func userInfo(user *models.User, role string) UserInfo {
	return UserInfo{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      role,
	}
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims carried by every token this service issues.
type Claims struct {
	Kind     TokenKind `json:"type"`
	Username string    `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TokenState is where a presented token sits in its lifecycle. Only
// StateValid lets a request proceed.
type TokenState int

const (
	StateRejected TokenState = iota
	StateExpired
	StateValid
)

func (s TokenState) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	default:
		return "rejected"
	}
}

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRejected  = errors.New("token rejected")
	ErrWrongTokenKind = errors.New("wrong token kind")
)

type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      func() time.Time
}

// TokenManager issues and verifies HS256 tokens with a key fixed at
// construction.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(cfg TokenConfig) *TokenManager {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}

	return &TokenManager{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Clock,
	}
}

func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// Issue signs a token of the given kind for subject.
func (m *TokenManager) Issue(subject, username string, kind TokenKind) (string, time.Time, error) {
	ttl := m.accessTTL
	if kind == KindRefresh {
		ttl = m.refreshTTL
	}

	now := m.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Kind:     kind,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify checks signature, expiry and kind. The returned state is
// StateValid only when err is nil.
func (m *TokenManager) Verify(tokenString string, kind TokenKind) (*Claims, TokenState, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, StateRejected, ErrTokenRejected
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, StateExpired, ErrTokenExpired
		default:
			return nil, StateRejected, ErrTokenRejected
		}
	}

	if claims.Subject == "" {
		return nil, StateRejected, ErrTokenRejected
	}

	if claims.Kind != kind {
		return nil, StateRejected, ErrWrongTokenKind
	}

	return claims, StateValid, nil
}

// Package auth issues and checks the bearer tokens of the admin API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	roleAdmin       = "admin"
	defaultTokenTTL = 24 * time.Hour
	issuer          = "relay"
)

var (
	// ErrNotAdmin is returned for account ids missing from the admin list.
	ErrNotAdmin     = errors.New("account is not an administrator")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("admin JWT secret is not configured")
)

type Service interface {
	IssueToken(accountID string) (string, error)
	ValidateToken(ctx context.Context, token string) (string, error)
}

type service struct {
	secret []byte
	admins map[string]bool
	ttl    time.Duration
	now    func() time.Time
}

// NewService signs HS256 tokens with secret for the given admin account ids.
func NewService(secret string, adminIDs []string, ttl time.Duration) (*service, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &service{secret: []byte(secret), admins: admins, ttl: ttl, now: time.Now}, nil
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *service) IssueToken(accountID string) (string, error) {
	if !s.admins[accountID] {
		return "", fmt.Errorf("%w: %q", ErrNotAdmin, accountID)
	}
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: roleAdmin,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken returns the admin account id carried by token. Tokens of
// accounts removed from the admin list stop validating immediately.
func (s *service) ValidateToken(ctx context.Context, token string) (string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.Role != roleAdmin {
		return "", ErrInvalidToken
	}
	if !s.admins[c.Subject] {
		return "", fmt.Errorf("%w: %q", ErrNotAdmin, c.Subject)
	}
	return c.Subject, nil
}

// Package token issues and verifies signed, time-limited bearer tokens.
// Tokens are stateless: verification needs no store access.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carries the registered claims plus the subject kept explicit for
// callers. Subject is a user id for session tokens and an email for
// developer feedback-view tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 tokens with a shared secret.
type Service struct {
	secret     []byte
	defaultTTL time.Duration
}

// New creates a token service. defaultTTL applies when Issue is called
// with ttl == 0.
func New(secret []byte, defaultTTL time.Duration) *Service {
	return &Service{secret: secret, defaultTTL: defaultTTL}
}

// Issue returns a signed token bound to subject, valid for ttl.
func (s *Service) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(s.secret)
}

// Verify parses and validates a token, returning its subject.
// Returns ErrTokenExpired for expired tokens and ErrInvalidToken for
// anything else that fails validation (tampering, wrong key, malformed).
func (s *Service) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !tok.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

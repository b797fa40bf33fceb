// Package jwtmw は API 利用者向けの JWT 発行と gin 認証ミドルウェアを提供します。
package jwtmw

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the "iss" claim of every token this service signs and accepts.
const Issuer = "stock-scanner"

// ErrEmptySecret is returned when a token is requested without a signing secret.
var ErrEmptySecret = errors.New("jwt secret is empty")

// Claims are the token claims used by the scan API.
type Claims struct {
	Scope []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Generator signs HS256 tokens for API clients.
type Generator struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewGenerator creates a new JWT generator with the provided secret and expiration duration.
func NewGenerator(secret string, expiration time.Duration) *Generator {
	return &Generator{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}
}

// GenerateToken creates a signed token for subject with the given scopes.
func (g *Generator) GenerateToken(subject string, scopes ...string) (string, error) {
	if len(g.secret) == 0 {
		return "", ErrEmptySecret
	}
	now := g.now()
	claims := Claims{
		Scope: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

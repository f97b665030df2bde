package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTIssuer signs a stateless HS256 token whose subject is the user id.
type JWTIssuer struct {
	Secret []byte
	TTL    time.Duration
	Secure bool
}

func NewJWTIssuer(secret string, ttl time.Duration, secure bool) *JWTIssuer {
	return &JWTIssuer{Secret: []byte(secret), TTL: ttl, Secure: secure}
}

func (j *JWTIssuer) Issue(_ context.Context, user *User) (*http.Cookie, error) {
	if len(j.Secret) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}
	now := time.Now()
	expires := now.Add(j.TTL)
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return sessionCookie(TokenCookieName, signed, expires, j.Secure), nil
}

package http

import (
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
)

// TokenValidator is the minimal interface the router requires to protect
// authenticated routes.
type TokenValidator interface {
	Validate(token string) (*jwtinfra.Claims, error)
}

// KeyLimiter is the minimal interface the router requires to throttle
// public auth endpoints per client.
type KeyLimiter interface {
	Allow(key string) bool
}

// Package oidc verifies Google ID tokens through OpenID Connect discovery
// instead of Google's idtoken helper. Useful where the service must pin the
// issuer or run against a test identity provider.
package oidc

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-otp-auth/internal/domain"
)

// GoogleIssuer is the discovery URL for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

type idTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

type claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Verifier checks ID tokens against the provider's published keys.
type Verifier struct {
	verifier idTokenVerifier
	timeout  time.Duration
}

// NewVerifier discovers issuer's endpoints and binds verification to clientID.
func NewVerifier(ctx context.Context, issuer, clientID string, timeout time.Duration) (*Verifier, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return &Verifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		timeout:  timeout,
	}, nil
}

func (v *Verifier) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	idt, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("invalid id token: %w", domain.ErrUnauthorized)
	}
	var c claims
	if err := idt.Claims(&c); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", domain.ErrUnauthorized)
	}
	return &domain.Identity{
		Subject:       idt.Subject,
		Email:         domain.NormalizeEmail(c.Email),
		Name:          c.Name,
		EmailVerified: c.EmailVerified,
	}, nil
}

package google

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"google.golang.org/api/idtoken"
)

// validateFunc matches idtoken.Validate; swapped in tests.
type validateFunc func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// Verifier verifies Google ID tokens against a specific client ID.
type Verifier struct {
	clientID string
	timeout  time.Duration
	validate validateFunc
}

func NewVerifier(clientID string, timeout time.Duration) *Verifier {
	return &Verifier{clientID: clientID, timeout: timeout, validate: idtoken.Validate}
}

// Verify validates the Google ID token and returns the extracted identity.
// Returns a domain.ErrUnauthorized-wrapped error if the token is invalid.
func (v *Verifier) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	if v.clientID == "" {
		return nil, fmt.Errorf("google sign-in is not configured: %w", domain.ErrUnauthorized)
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	p, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google token: %w", domain.ErrUnauthorized)
	}
	return identityFromClaims(p.Subject, p.Claims), nil
}

func identityFromClaims(sub string, claims map[string]interface{}) *domain.Identity {
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if name == "" {
		given, _ := claims["given_name"].(string)
		family, _ := claims["family_name"].(string)
		name = strings.TrimSpace(given + " " + family)
	}
	return &domain.Identity{
		Subject:       sub,
		Email:         domain.NormalizeEmail(email),
		Name:          name,
		EmailVerified: emailVerified(claims["email_verified"]),
	}
}

// Google sends email_verified as a bool in ID tokens but some libraries
// surface it as the string "true".
func emailVerified(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

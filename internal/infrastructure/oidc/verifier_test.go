package oidc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-otp-auth/internal/domain"
	"github.com/stretchr/testify/assert"
)

type failingVerifier struct{}

func (failingVerifier) Verify(context.Context, string) (*oidc.IDToken, error) {
	return nil, errors.New("oidc: token is expired")
}

func TestVerify_RejectionIsUnauthorized(t *testing.T) {
	v := &Verifier{verifier: failingVerifier{}, timeout: time.Second}
	_, err := v.Verify(context.Background(), "tok")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerify_StaticKeySet(t *testing.T) {
	// A verifier over an empty key set rejects every token.
	keys := &oidc.StaticKeySet{}
	v := &Verifier{
		verifier: oidc.NewVerifier(GoogleIssuer, keys, &oidc.Config{ClientID: "client-123"}),
		timeout:  time.Second,
	}
	_, err := v.Verify(context.Background(), "a.b.c")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

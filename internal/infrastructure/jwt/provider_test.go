package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPEM(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return privPEM, pubPEM
}

func testOptions() Options {
	return Options{
		Expiry:             24 * time.Hour,
		VerificationExpiry: 15 * time.Minute,
		Issuer:             "otp-auth-api",
		Audience:           "otp-auth-api-users",
	}
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	priv, pub := testKeyPEM(t)
	p, err := NewProviderFromPEM(priv, pub, testOptions())
	require.NoError(t, err)
	return p
}

func testUser() *domain.User {
	return &domain.User{UserID: "u1", Email: "a@x.com", Name: "Alice"}
}

func TestNewProvider_FromFiles(t *testing.T) {
	priv, pub := testKeyPEM(t)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(privPath, priv, 0600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0600))

	p, err := NewProvider(&config.Config{
		JWTPrivateKeyPath:    privPath,
		JWTPublicKeyPath:     pubPath,
		JWTExpiry:            24 * time.Hour,
		VerificationTokenTTL: 15 * time.Minute,
		JWTIssuer:            "iss",
		JWTAudience:          "aud",
	})
	require.NoError(t, err)

	tok, err := p.Issue(testUser())
	require.NoError(t, err)
	_, err = p.Validate(tok)
	assert.NoError(t, err)
}

func TestNewProvider_MissingFile(t *testing.T) {
	_, err := NewProvider(&config.Config{JWTPrivateKeyPath: "/nonexistent/private.pem"})
	assert.ErrorContains(t, err, "read private key")
}

func TestIssueValidate_RoundTrip(t *testing.T) {
	p := newTestProvider(t)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	tok, err := p.Issue(testUser())
	require.NoError(t, err)

	claims, err := p.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "otp-auth-api", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"otp-auth-api-users"}, claims.Audience)
	assert.Equal(t, fixed.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixed.Add(24*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestValidate_ExpiredEvenWithGoodSignature(t *testing.T) {
	p := newTestProvider(t)
	start := time.Now()
	p.now = func() time.Time { return start }
	tok, err := p.Issue(testUser())
	require.NoError(t, err)

	p.now = func() time.Time { return start.Add(24*time.Hour + time.Minute) }
	_, err = p.Validate(tok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))
	assert.False(t, errors.Is(err, domain.ErrTokenInvalid))
}

func TestValidate_ForeignKeyIsInvalid(t *testing.T) {
	signer := newTestProvider(t)
	verifier := newTestProvider(t)

	tok, err := signer.Issue(testUser())
	require.NoError(t, err)

	_, err = verifier.Validate(tok)
	assert.True(t, errors.Is(err, domain.ErrTokenInvalid))
}

func TestValidate_Malformed(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.Validate("not-a-real-token")
	assert.True(t, errors.Is(err, domain.ErrTokenInvalid))
}

func TestValidate_RejectsHS256(t *testing.T) {
	p := newTestProvider(t)
	claims := Claims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "otp-auth-api",
		Audience:  jwt.ClaimStrings{"otp-auth-api-users"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = p.Validate(tok)
	assert.True(t, errors.Is(err, domain.ErrTokenInvalid))
}

func TestVerificationToken_RoundTrip(t *testing.T) {
	p := newTestProvider(t)
	tok, err := p.IssueVerification("a@x.com", domain.PurposeSignup)
	require.NoError(t, err)

	email, purpose, err := p.ValidateVerification(tok)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", email)
	assert.Equal(t, domain.PurposeSignup, purpose)
}

func TestVerificationToken_NotASessionToken(t *testing.T) {
	p := newTestProvider(t)

	vtok, err := p.IssueVerification("a@x.com", domain.PurposeSignup)
	require.NoError(t, err)
	_, err = p.Validate(vtok)
	assert.True(t, errors.Is(err, domain.ErrTokenInvalid))

	stok, err := p.Issue(testUser())
	require.NoError(t, err)
	_, _, err = p.ValidateVerification(stok)
	assert.True(t, errors.Is(err, domain.ErrTokenInvalid))
}

func TestVerificationToken_Expires(t *testing.T) {
	p := newTestProvider(t)
	start := time.Now()
	p.now = func() time.Time { return start }
	tok, err := p.IssueVerification("a@x.com", domain.PurposeSignup)
	require.NoError(t, err)

	p.now = func() time.Time { return start.Add(16 * time.Minute) }
	_, _, err = p.ValidateVerification(tok)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))
}

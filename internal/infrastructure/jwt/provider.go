package jwtinfra

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the session token payload.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// VerificationClaims prove that an email address passed an OTP check.
// The subject is the verified email.
type VerificationClaims struct {
	Purpose domain.Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Options configures token lifetimes and the issuer/audience pair.
type Options struct {
	Expiry             time.Duration
	VerificationExpiry time.Duration
	Issuer             string
	Audience           string
}

// OptionsFromConfig picks the token settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Expiry:             cfg.JWTExpiry,
		VerificationExpiry: cfg.VerificationTokenTTL,
		Issuer:             cfg.JWTIssuer,
		Audience:           cfg.JWTAudience,
	}
}

// Provider signs and verifies RS256 JWTs.
type Provider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	opts       Options
	now        func() time.Time
}

// NewProvider reads the PEM key pair from the paths in cfg.
func NewProvider(cfg *config.Config) (*Provider, error) {
	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewProviderFromPEM(privBytes, pubBytes, OptionsFromConfig(cfg))
}

// NewProviderFromPEM builds a provider from PEM-encoded keys already in memory.
func NewProviderFromPEM(privPEM, pubPEM []byte, opts Options) (*Provider, error) {
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &Provider{privateKey: privKey, publicKey: pubKey, opts: opts, now: time.Now}, nil
}

func (p *Provider) verificationAudience() string {
	return p.opts.Audience + "-email-verification"
}

// Issue mints a session token for u.
func (p *Provider) Issue(u *domain.User) (string, error) {
	now := p.now()
	claims := Claims{
		UserID: u.UserID,
		Email:  u.Email,
		Name:   u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			Issuer:    p.opts.Issuer,
			Audience:  jwt.ClaimStrings{p.opts.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(p.opts.Expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.privateKey)
}

// Validate returns the claims of a session token. Failures wrap
// domain.ErrTokenExpired or domain.ErrTokenInvalid.
func (p *Provider) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if err := p.parse(tokenStr, claims, p.opts.Audience); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueVerification mints a short-lived proof that email passed an OTP check
// for purpose.
func (p *Provider) IssueVerification(email string, purpose domain.Purpose) (string, error) {
	now := p.now()
	claims := VerificationClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    p.opts.Issuer,
			Audience:  jwt.ClaimStrings{p.verificationAudience()},
			ExpiresAt: jwt.NewNumericDate(now.Add(p.opts.VerificationExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.privateKey)
}

// ValidateVerification returns the verified email and purpose carried by a
// verification token.
func (p *Provider) ValidateVerification(tokenStr string) (string, domain.Purpose, error) {
	claims := &VerificationClaims{}
	if err := p.parse(tokenStr, claims, p.verificationAudience()); err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Purpose, nil
}

func (p *Provider) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(p.opts.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return domain.ErrTokenInvalid
	}
	return nil
}

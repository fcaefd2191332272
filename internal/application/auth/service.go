package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-otp-auth/internal/application/otp"
	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/pkg/id"
	"github.com/go-otp-auth/internal/pkg/validate"
)

const (
	invalidCredentials  = "invalid credentials"
	placeholderPassword = "placeholder-for-timing"
)

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,bcryptmax,strongpassword"`
	Name     string `json:"name" validate:"required,min=2,max=50"`
	// VerificationToken proves the email passed a signup OTP. Required when
	// signup is OTP-gated.
	VerificationToken string `json:"verificationToken,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SendOTPRequest struct {
	Email   string         `json:"email" validate:"required,email"`
	Purpose domain.Purpose `json:"purpose" validate:"required,purpose"`
}

type VerifyOTPRequest struct {
	Email   string         `json:"email" validate:"required,email"`
	OTP     string         `json:"otp" validate:"required,otpcode"`
	Purpose domain.Purpose `json:"purpose" validate:"required,purpose"`
}

type GoogleLoginRequest struct {
	Credential string `json:"credential" validate:"required"`
}

type CompleteGoogleSignupRequest struct {
	Credential string `json:"credential" validate:"required"`
	OTP        string `json:"otp" validate:"required,otpcode"`
}

// Session is a minted token and the user it was minted for.
type Session struct {
	Token string
	User  *domain.User
}

// GoogleLoginResult is either a session or a pending sign-up awaiting an OTP.
type GoogleLoginResult struct {
	Session     *Session
	RequiresOTP bool
	Email       string
	Purpose     domain.Purpose
}

type OTPSent struct {
	ExpiresIn time.Duration
}

// OTPConfirmation carries what a verified code unlocks: a verification token
// for signup and password reset, a session for login.
type OTPConfirmation struct {
	VerificationToken string
	Session           *Session
}

type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*Session, error)
	Login(ctx context.Context, req LoginRequest) (*Session, error)
	RequestOTP(ctx context.Context, req SendOTPRequest) (*OTPSent, error)
	ConfirmOTP(ctx context.Context, req VerifyOTPRequest) (*OTPConfirmation, error)
	GoogleLogin(ctx context.Context, req GoogleLoginRequest) (*GoogleLoginResult, error)
	CompleteGoogleSignup(ctx context.Context, req CompleteGoogleSignupRequest) (*Session, error)
	CurrentUser(ctx context.Context, email string) (*domain.User, error)
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)
	LinkGoogle(ctx context.Context, email, sub string) error
	MarkEmailVerified(ctx context.Context, email string) error
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error
}

type otpLedger interface {
	Issue(ctx context.Context, email string, purpose domain.Purpose) (*domain.OTPRecord, error)
	Verify(ctx context.Context, email, code string, purpose domain.Purpose) (domain.OTPOutcome, error)
	Discard(ctx context.Context, r *domain.OTPRecord) error
}

type notifier interface {
	Send(ctx context.Context, to, code string, purpose domain.Purpose) domain.DeliveryResult
}

type identityVerifier interface {
	Verify(ctx context.Context, assertion string) (*domain.Identity, error)
}

type tokenIssuer interface {
	Issue(u *domain.User) (string, error)
	IssueVerification(email string, purpose domain.Purpose) (string, error)
	ValidateVerification(token string) (string, domain.Purpose, error)
}

type passwordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
}

type sendLimiter interface {
	Allow(key string) bool
}

type service struct {
	users            userStore
	ledger           otpLedger
	notifier         notifier
	identity         identityVerifier
	tokens           tokenIssuer
	hasher           passwordHasher
	sendLimiter      sendLimiter
	requireSignupOTP bool
	now              func() time.Time

	placeholderOnce sync.Once
	placeholderHash string
}

type ServiceDeps struct {
	UserRepo         userStore
	Ledger           otpLedger
	Notifier         notifier
	Identity         identityVerifier
	Tokens           tokenIssuer
	Hasher           passwordHasher
	SendLimiter      sendLimiter // optional
	RequireSignupOTP bool
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:            deps.UserRepo,
		ledger:           deps.Ledger,
		notifier:         deps.Notifier,
		identity:         deps.Identity,
		tokens:           deps.Tokens,
		hasher:           deps.Hasher,
		sendLimiter:      deps.SendLimiter,
		requireSignupOTP: deps.RequireSignupOTP,
		now:              time.Now,
	}
}

func (s *service) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	verified := false
	if s.requireSignupOTP || req.VerificationToken != "" {
		if err := s.checkVerification(req.VerificationToken, req.Email, domain.PurposeSignup); err != nil {
			return nil, err
		}
		verified = true
	}

	if err := s.ensureNoUser(ctx, req.Email); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:        id.New(),
		Email:         req.Email,
		Name:          req.Name,
		PasswordHash:  hash,
		EmailVerified: verified,
		CreatedAt:     now,
		LastLoginAt:   &now,
	}
	// Create is conditional, so a racing signup still ends in ErrConflict.
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.session(u)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		s.burnCompare(req.Password)
		return nil, fmt.Errorf("%s: %w", invalidCredentials, domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !u.HasPassword() {
		s.burnCompare(req.Password)
		return nil, fmt.Errorf("%s: %w", invalidCredentials, domain.ErrUnauthorized)
	}
	if !s.hasher.Compare(u.PasswordHash, req.Password) {
		return nil, fmt.Errorf("%s: %w", invalidCredentials, domain.ErrUnauthorized)
	}
	s.touchLogin(ctx, u)
	return s.session(u)
}

func (s *service) RequestOTP(ctx context.Context, req SendOTPRequest) (*OTPSent, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Purpose == domain.PurposeSignup {
		if err := s.ensureNoUser(ctx, req.Email); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.users.GetByEmail(ctx, req.Email); err != nil {
			return nil, err
		}
	}
	if err := s.sendOTP(ctx, req.Email, req.Purpose); err != nil {
		return nil, err
	}
	return &OTPSent{ExpiresIn: otp.TTL}, nil
}

func (s *service) ConfirmOTP(ctx context.Context, req VerifyOTPRequest) (*OTPConfirmation, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if err := s.verifyOTP(ctx, req.Email, req.OTP, req.Purpose); err != nil {
		return nil, err
	}

	if req.Purpose == domain.PurposeLogin {
		u, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		if !u.EmailVerified {
			if err := s.users.MarkEmailVerified(ctx, u.Email); err != nil {
				slog.Warn("failed to mark email verified", "user_id", u.UserID, "err", err)
			} else {
				u.EmailVerified = true
			}
		}
		s.touchLogin(ctx, u)
		sess, err := s.session(u)
		if err != nil {
			return nil, err
		}
		return &OTPConfirmation{Session: sess}, nil
	}

	tok, err := s.tokens.IssueVerification(req.Email, req.Purpose)
	if err != nil {
		return nil, err
	}
	return &OTPConfirmation{VerificationToken: tok}, nil
}

func (s *service) GoogleLogin(ctx context.Context, req GoogleLoginRequest) (*GoogleLoginResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	ident, err := s.verifyIdentity(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByGoogleSub(ctx, ident.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		u, err = s.users.GetByEmail(ctx, ident.Email)
	}
	if errors.Is(err, domain.ErrNotFound) {
		// New account: prove mailbox control with a signup OTP first.
		if err := s.sendOTP(ctx, ident.Email, domain.PurposeSignup); err != nil {
			return nil, err
		}
		return &GoogleLoginResult{RequiresOTP: true, Email: ident.Email, Purpose: domain.PurposeSignup}, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case u.GoogleSub == "":
		if err := s.users.LinkGoogle(ctx, u.Email, ident.Subject); err != nil {
			return nil, err
		}
		u.GoogleSub = ident.Subject
		u.EmailVerified = true
	case u.GoogleSub != ident.Subject:
		return nil, fmt.Errorf("account is linked to a different Google identity: %w", domain.ErrUnauthorized)
	}
	s.touchLogin(ctx, u)
	sess, err := s.session(u)
	if err != nil {
		return nil, err
	}
	return &GoogleLoginResult{Session: sess}, nil
}

func (s *service) CompleteGoogleSignup(ctx context.Context, req CompleteGoogleSignupRequest) (*Session, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	ident, err := s.verifyIdentity(ctx, req.Credential)
	if err != nil {
		return nil, err
	}
	if err := s.verifyOTP(ctx, ident.Email, req.OTP, domain.PurposeSignup); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:        id.New(),
		Email:         ident.Email,
		Name:          ident.Name,
		GoogleSub:     ident.Subject,
		EmailVerified: true,
		CreatedAt:     now,
		LastLoginAt:   &now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.session(u)
}

func (s *service) CurrentUser(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
}

// sendOTP issues a code and delivers it. An undelivered code is discarded so
// it never lingers as a live record.
func (s *service) sendOTP(ctx context.Context, email string, purpose domain.Purpose) error {
	if s.sendLimiter != nil && !s.sendLimiter.Allow(email) {
		return fmt.Errorf("too many OTP requests for this email: %w", domain.ErrRateLimited)
	}
	rec, err := s.ledger.Issue(ctx, email, purpose)
	if err != nil {
		return err
	}
	res := s.notifier.Send(ctx, email, rec.Code, purpose)
	if res.Success {
		return nil
	}
	if err := s.ledger.Discard(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("failed to discard undelivered otp", "otp_id", rec.OTPID, "err", err)
	}
	if res.Err != nil {
		return fmt.Errorf("send otp: %w", res.Err)
	}
	return fmt.Errorf("send otp: %w", domain.ErrDelivery)
}

func (s *service) verifyOTP(ctx context.Context, email, code string, purpose domain.Purpose) error {
	outcome, err := s.ledger.Verify(ctx, email, code, purpose)
	if err != nil {
		return err
	}
	switch outcome {
	case domain.OTPVerified:
		return nil
	case domain.OTPAttemptsExceeded:
		return domain.ErrOTPAttemptsExceeded
	default:
		return domain.ErrOTPInvalid
	}
}

func (s *service) verifyIdentity(ctx context.Context, credential string) (*domain.Identity, error) {
	ident, err := s.identity.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}
	if !ident.EmailVerified {
		return nil, fmt.Errorf("google email is not verified: %w", domain.ErrUnauthorized)
	}
	ident.Email = domain.NormalizeEmail(ident.Email)
	return ident, nil
}

func (s *service) checkVerification(token, email string, purpose domain.Purpose) error {
	if token == "" {
		return fmt.Errorf("email verification required: %w", domain.ErrUnauthorized)
	}
	subject, p, err := s.tokens.ValidateVerification(token)
	if err != nil {
		return fmt.Errorf("verification token: %v: %w", err, domain.ErrUnauthorized)
	}
	if subject != email || p != purpose {
		return fmt.Errorf("verification token does not match request: %w", domain.ErrUnauthorized)
	}
	return nil
}

func (s *service) ensureNoUser(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// burnCompare spends one hash comparison that never matches, so rejecting an
// unknown or password-less account costs the same as a wrong password.
func (s *service) burnCompare(plain string) {
	s.placeholderOnce.Do(func() {
		h, err := s.hasher.Hash(placeholderPassword)
		if err != nil {
			slog.Warn("failed to prepare placeholder hash", "err", err)
		}
		s.placeholderHash = h
	})
	s.hasher.Compare(s.placeholderHash, plain)
}

// touchLogin records the login time. Failure does not block the login.
func (s *service) touchLogin(ctx context.Context, u *domain.User) {
	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, u.Email, now); err != nil {
		slog.Warn("failed to update last login", "user_id", u.UserID, "err", err)
		return
	}
	u.LastLoginAt = &now
}

func (s *service) session(u *domain.User) (*Session, error) {
	tok, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: tok, User: u}, nil
}

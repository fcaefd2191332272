package domain

import "time"

// Purpose scopes an OTP: a code issued for one purpose never satisfies another.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeSignup, PurposeLogin, PurposePasswordReset:
		return true
	}
	return false
}

// OTPRecord is a single verification challenge.
// PK: otp_key (email#purpose), SK: otp_id.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type OTPRecord struct {
	Key       string    `json:"-" dynamodbav:"otp_key"`
	OTPID     string    `json:"id" dynamodbav:"otp_id"`
	Email     string    `json:"email" dynamodbav:"email"`
	Code      string    `json:"-" dynamodbav:"code"`
	Purpose   Purpose   `json:"purpose" dynamodbav:"purpose"`
	Attempts  int       `json:"attempts" dynamodbav:"attempts"`
	Used      bool      `json:"used" dynamodbav:"used"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"`
}

// OTPKey is the lookup key shared by every record issued for (email, purpose).
func OTPKey(email string, purpose Purpose) string {
	return email + "#" + string(purpose)
}

// Usable reports whether the record can still be consulted by a verification.
func (r *OTPRecord) Usable(now time.Time) bool {
	return !r.Used && r.ExpiresAt > now.Unix()
}

type OTPOutcome string

const (
	OTPVerified         OTPOutcome = "verified"
	OTPInvalidOrExpired OTPOutcome = "invalid_or_expired"
	OTPAttemptsExceeded OTPOutcome = "attempts_exceeded"
)

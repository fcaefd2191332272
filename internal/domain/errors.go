package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrDelivery     = errors.New("delivery failed")
	ErrRateLimited  = errors.New("rate limited")
	ErrStorage      = errors.New("storage failure")
)

// OTP verification rejections. Both surface to the caller as a bad request.
var (
	ErrOTPInvalid          = errors.New("invalid or expired OTP")
	ErrOTPAttemptsExceeded = errors.New("maximum verification attempts exceeded")
)

// Session token failures. Callers see the same rejection for both; the split
// exists for logging.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/pkg/validate"
)

const maxBodyBytes = 1 << 20

// MessageEnvelope is the generic response wrapper. Details lists the failed
// constraints of a rejected request.
type MessageEnvelope struct {
	Message string               `json:"message"`
	Details []validate.Violation `json:"details,omitempty"`
}

// AuthEnvelope wraps signup/login responses.
type AuthEnvelope struct {
	Message string       `json:"message,omitempty"`
	Token   string       `json:"token"`
	User    *domain.User `json:"user"`
}

// GoogleLoginEnvelope is either a session or a pending sign-up.
type GoogleLoginEnvelope struct {
	Message     string         `json:"message,omitempty"`
	Token       string         `json:"token,omitempty"`
	User        *domain.User   `json:"user,omitempty"`
	RequiresOTP bool           `json:"requiresOTP,omitempty"`
	Email       string         `json:"email,omitempty"`
	Purpose     domain.Purpose `json:"purpose,omitempty"`
}

type OTPSentEnvelope struct {
	Message   string `json:"message"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

type OTPVerifiedEnvelope struct {
	Message           string       `json:"message"`
	Verified          bool         `json:"verified"`
	VerificationToken string       `json:"verificationToken,omitempty"`
	Token             string       `json:"token,omitempty"`
	User              *domain.User `json:"user,omitempty"`
}

type UserEnvelope struct {
	User *domain.User `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Message: msg})
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

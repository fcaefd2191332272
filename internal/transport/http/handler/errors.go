package handler

import (
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/pkg/validate"
)

// writeServiceError maps a service error to its HTTP status. Anything not
// recognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *validate.Error
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Message: "validation failed", Details: ve.Violations})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrOTPInvalid):
		writeError(w, http.StatusBadRequest, domain.ErrOTPInvalid.Error())
	case errors.Is(err, domain.ErrOTPAttemptsExceeded):
		writeError(w, http.StatusBadRequest, domain.ErrOTPAttemptsExceeded.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "user already exists with this email")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many requests, please try again later")
	case errors.Is(err, domain.ErrDelivery):
		slog.Error("otp delivery failed", "request_id", chimiddleware.GetReqID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to send OTP email")
	default:
		slog.Error("request failed", "path", r.URL.Path, "request_id", chimiddleware.GetReqID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

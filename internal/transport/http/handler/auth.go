package handler

import (
	"net/http"

	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/transport/http/middleware"
)

// AuthHandler serves the password, OTP and Google sign-in endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthEnvelope{Message: "user created successfully", Token: sess.Token, User: sess.User})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Message: "login successful", Token: sess.Token, User: sess.User})
}

func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.SendOTPRequest
	if !decode(w, r, &req) {
		return
	}
	sent, err := h.svc.RequestOTP(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OTPSentEnvelope{
		Message:   "OTP sent successfully to your email",
		ExpiresIn: int(sent.ExpiresIn.Seconds()),
	})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ConfirmOTP(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	env := OTPVerifiedEnvelope{
		Message:           "OTP verified successfully",
		Verified:          true,
		VerificationToken: res.VerificationToken,
	}
	if res.Session != nil {
		env.Token = res.Session.Token
		env.User = res.Session.User
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.GoogleLoginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.GoogleLogin(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.RequiresOTP {
		writeJSON(w, http.StatusOK, GoogleLoginEnvelope{
			Message:     "please verify your email with the OTP sent to complete registration",
			RequiresOTP: true,
			Email:       res.Email,
			Purpose:     res.Purpose,
		})
		return
	}
	writeJSON(w, http.StatusOK, GoogleLoginEnvelope{
		Message: "google login successful",
		Token:   res.Session.Token,
		User:    res.Session.User,
	})
}

func (h *AuthHandler) CompleteGoogleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.CompleteGoogleSignupRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.CompleteGoogleSignup(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthEnvelope{Message: "google signup completed", Token: sess.Token, User: sess.User})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.CurrentUser(r.Context(), claims.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: u})
}

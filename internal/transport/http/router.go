package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-otp-auth/internal/transport/http/middleware"
)

// Deps holds everything the router wires into handlers.
type Deps struct {
	AuthService auth.Service
	Tokens      TokenValidator
	// IPLimiter throttles the public auth endpoints. Nil disables it.
	IPLimiter KeyLimiter
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limit := func(next http.Handler) http.Handler { return next }
	if deps.IPLimiter != nil {
		limit = appmiddleware.RateLimit(deps.IPLimiter, cfg.TrustedProxyHops)
	}

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(deps.AuthService)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			// ── Public routes ────────────────────────────────────────────────
			r.Group(func(r chi.Router) {
				r.Use(limit)

				r.Post("/signup", authH.Signup)
				r.Post("/login", authH.Login)
				r.Post("/send-otp", authH.SendOTP)
				r.Post("/verify-otp", authH.VerifyOTP)
				r.Post("/google-login", authH.GoogleLogin)
				r.Post("/complete-google-signup", authH.CompleteGoogleSignup)
			})

			// ── Authenticated routes ─────────────────────────────────────────
			r.With(appmiddleware.Auth(deps.Tokens)).Get("/me", authH.Me)
		})
	})

	return r
}

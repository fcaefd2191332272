package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/application/notification"
	"github.com/go-otp-auth/internal/application/otp"
	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/infrastructure/dynamo"
	"github.com/go-otp-auth/internal/infrastructure/google"
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
	"github.com/go-otp-auth/internal/infrastructure/oidc"
	"github.com/go-otp-auth/internal/infrastructure/postgres"
	s3infra "github.com/go-otp-auth/internal/infrastructure/s3"
	"github.com/go-otp-auth/internal/infrastructure/smtp"
	"github.com/go-otp-auth/internal/infrastructure/sns"
	"github.com/go-otp-auth/internal/pkg/password"
	"github.com/go-otp-auth/internal/pkg/ratelimit"
	transporthttp "github.com/go-otp-auth/internal/transport/http"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

// userStore is what both storage backends provide for accounts.
type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)
	LinkGoogle(ctx context.Context, email, sub string) error
	MarkEmailVerified(ctx context.Context, email string) error
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error
}

type identityVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

const limiterIdle = 10 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}

func run(ctx context.Context, cfg *config.Config) error {
	users, otpStore, closeStore, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	deliverer, err := newDeliverer(ctx, cfg)
	if err != nil {
		return err
	}
	identity, err := newIdentityVerifier(ctx, cfg)
	if err != nil {
		return err
	}
	tokens, err := newTokenProvider(ctx, cfg)
	if err != nil {
		return err
	}

	ledger := otp.NewLedger(otpStore)
	sendLimiter := ratelimit.New(ratelimit.Every(cfg.OTPSendInterval), cfg.OTPSendBurst, limiterIdle)
	ipLimiter := ratelimit.New(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, limiterIdle)

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:         users,
		Ledger:           ledger,
		Notifier:         notification.NewGateway(deliverer, cfg.NotifyTimeout, otp.TTL),
		Identity:         identity,
		Tokens:           tokens,
		Hasher:           password.NewHasher(password.Cost),
		SendLimiter:      sendLimiter,
		RequireSignupOTP: cfg.RequireSignupOTP,
	})

	go otp.RunReaper(ctx, ledger, cfg.OTPReapInterval)
	go sendLimiter.Run(ctx, time.Minute)
	go ipLimiter.Run(ctx, time.Minute)

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		AuthService: authSvc,
		Tokens:      tokens,
		IPLimiter:   ipLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv,
			"store", cfg.StoreBackend, "notify", cfg.NotifyBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (userStore, otp.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return postgres.NewUserRepo(pool), postgres.NewOTPRepo(pool), pool.Close, nil
	default:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		// Creates the tables if they don't exist.
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewUserRepo(client, cfg.DynamoTables.Users),
			dynamo.NewOTPRepo(client, cfg.DynamoTables.OTPs),
			func() {}, nil
	}
}

func newDeliverer(ctx context.Context, cfg *config.Config) (notification.Deliverer, error) {
	if cfg.NotifyBackend == config.NotifySNS {
		return sns.NewPublisher(ctx, cfg)
	}
	return smtp.NewMailer(cfg), nil
}

func newIdentityVerifier(ctx context.Context, cfg *config.Config) (identityVerifier, error) {
	if cfg.GoogleClientID == "" {
		slog.Warn("GOOGLE_CLIENT_ID is not set; Google sign-in will reject every credential")
	}
	if cfg.IdentityVerifier == config.VerifierOIDC {
		return oidc.NewVerifier(ctx, oidc.GoogleIssuer, cfg.GoogleClientID, cfg.GoogleVerifyTimeout)
	}
	return google.NewVerifier(cfg.GoogleClientID, cfg.GoogleVerifyTimeout), nil
}

func newTokenProvider(ctx context.Context, cfg *config.Config) (*jwtinfra.Provider, error) {
	if cfg.JWTKeySource != config.KeySourceS3 {
		return jwtinfra.NewProvider(cfg)
	}
	client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	priv, pub, err := s3infra.NewKeyStore(client, cfg.JWTKeysBucket).
		KeyPair(ctx, cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, err
	}
	return jwtinfra.NewProviderFromPEM(priv, pub, jwtinfra.OptionsFromConfig(cfg))
}

package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"artmarket-api/internal/artwork"
	"artmarket-api/internal/auth"
	"artmarket-api/internal/db"
	"artmarket-api/internal/kv"
	"artmarket-api/internal/mailer"
	"artmarket-api/internal/maintenance"
	"artmarket-api/internal/observability"
	"artmarket-api/internal/revocation"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	accessSecret, err := mustEnv("ACCESS_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}
	refreshSecret, err := mustEnv("REFRESH_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}

	accessTTL, err := auth.ParseExpiry(envOrDefault("ACCESS_TOKEN_EXPIRY", "1h"))
	if err != nil {
		return nil, fmt.Errorf("parse ACCESS_TOKEN_EXPIRY: %w", err)
	}
	refreshTTL, err := auth.ParseExpiry(envOrDefault("REFRESH_TOKEN_EXPIRY", "7d"))
	if err != nil {
		return nil, fmt.Errorf("parse REFRESH_TOKEN_EXPIRY: %w", err)
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var store kv.Store
	closeKV := func() error { return nil }
	if redisURL := strings.TrimSpace(os.Getenv("REDIS_URL")); redisURL != "" {
		client, err := kv.OpenRedis(context.Background(), redisURL)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		store = kv.NewRedisStore(client)
		closeKV = client.Close
	} else {
		logger.Warn("redis_not_configured", map[string]any{
			"detail": "token revocation and rate limits are process-local",
		})
		store = kv.NewMemoryStore()
	}

	revoker := revocation.NewBlacklist(store)

	var mail mailer.Sender
	if smtpHost := strings.TrimSpace(os.Getenv("SMTP_HOST")); smtpHost != "" {
		mail = mailer.NewSMTPSender(
			smtpHost,
			envIntOrDefault("SMTP_PORT", 587),
			os.Getenv("SMTP_USERNAME"),
			os.Getenv("SMTP_PASSWORD"),
			envOrDefault("SMTP_FROM", "no-reply@artmarket.local"),
		)
	} else {
		mail = mailer.NewLogSender(logger)
	}

	tokens, err := auth.NewTokenManager(accessSecret, refreshSecret, accessTTL, refreshTTL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(
		authRepo,
		tokens,
		revoker,
		mail,
		logger,
		envOrDefault("FRONTEND_BASE_URL", "http://localhost:3000"),
	)
	authHandler := auth.NewHandler(authService, os.Getenv("OAUTH_GATEWAY_SECRET"))

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("AUTH_LOCKOUT_RETENTION_DAYS", 30),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	artworkRepo := artwork.NewRepository(database)
	artworkHandler := artwork.NewHandler(artworkRepo)

	loginLimiter := auth.NewLoginRateLimiter(
		store,
		logger,
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	requireAuth := func(next http.HandlerFunc) http.Handler {
		return auth.Middleware(tokens, revoker, next)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.HandleFunc("POST /auth/verify-email", authHandler.VerifyEmail)
	mux.HandleFunc("POST /auth/resend-verification", authHandler.ResendVerification)
	mux.Handle("POST /auth/forgot-password", loginLimiter.Middleware(http.HandlerFunc(authHandler.ForgotPassword)))
	mux.HandleFunc("POST /auth/reset-password", authHandler.ResetPassword)
	mux.Handle("PUT /auth/password", requireAuth(authHandler.UpdatePassword))
	mux.HandleFunc("POST /auth/oauth", authHandler.OAuthLogin)
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.HandleFunc("GET /artworks", artworkHandler.ListArtworks)
	mux.Handle("POST /artworks", requireAuth(artworkHandler.CreateArtwork))
	mux.Handle("PUT /artworks/{id}", requireAuth(artworkHandler.UpdateArtwork))
	mux.Handle("DELETE /artworks/{id}", requireAuth(artworkHandler.DeleteArtwork))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			_ = closeKV()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

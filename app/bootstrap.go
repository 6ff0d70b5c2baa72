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
	"github.com/redis/go-redis/v9"

	"user-service/internal/account"
	"user-service/internal/db"
	"user-service/internal/maintenance"
	"user-service/internal/notification"
	"user-service/internal/observability"
	"user-service/internal/ratelimit"
	"user-service/internal/session"
	"user-service/internal/verification"
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
	redisURL, err := mustEnv("REDIS_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(envOrDefault("APP_BASE_URL", "http://localhost:8080"), "/")

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
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOptions)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		_ = database.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	sender := buildSender(logger)

	verificationRepo := verification.NewRepository(database)
	resendThrottle := verification.NewResendThrottle(
		redisClient,
		envSecondsOrDefault("VERIFICATION_RESEND_INTERVAL_SECONDS", 60),
	)
	verificationService := verification.NewService(verificationRepo, sender, resendThrottle, baseURL, logger)
	verificationService.WithTokenConfig(
		envIntOrDefault("VERIFICATION_TOKEN_LENGTH", 6),
		envMinutesOrDefault("VERIFICATION_TOKEN_TTL_MINUTES", 5),
	)
	verificationHandler := verification.NewHandler(verificationService)

	refreshStore := session.NewRedisStore(redisClient)
	sessionIssuer := session.NewIssuer(refreshStore, jwtSecret)
	sessionIssuer.WithTokenTTLs(
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
	)
	sessionHandler := session.NewHandler(sessionIssuer)

	accountRepo := account.NewRepository(database)
	hasher := account.NewPasswordHasher(envIntOrDefault("BCRYPT_COST", 10))
	accountService := account.NewService(accountRepo, hasher, verificationService, sessionIssuer, logger)
	accountHandler := account.NewHandler(accountService)

	cleanupHandler := maintenance.NewCleanupHandler(
		verificationRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envIntOrDefault("VERIFICATION_CLEANUP_BATCH_SIZE", 500),
	)

	limiter := ratelimit.NewLimiter(
		envIntOrDefault("AUTH_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("AUTH_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	mux := http.NewServeMux()
	mux.Handle("POST /auth/register", limiter.Middleware(http.HandlerFunc(accountHandler.Register)))
	mux.Handle("POST /auth/login", limiter.Middleware(http.HandlerFunc(accountHandler.Login)))
	mux.HandleFunc("GET /auth/verify", verificationHandler.Verify)
	mux.HandleFunc("POST /auth/resend", accountHandler.ResendVerification)
	mux.HandleFunc("POST /auth/refresh", sessionHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", sessionHandler.Logout)
	mux.Handle("GET /users/{id}", session.Middleware(jwtSecret, http.HandlerFunc(accountHandler.GetUser)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database, redisClient))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			_ = redisClient.Close()
			return database.Close()
		},
	}, nil
}

func buildSender(logger *observability.Logger) notification.Sender {
	host := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	if host == "" {
		logger.Warn("smtp_not_configured", map[string]any{
			"detail": "verification emails will be written to the log",
		})
		return notification.NewLogSender(logger)
	}

	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     host,
		Port:     envOrDefault("SMTP_PORT", "587"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     envOrDefault("SMTP_FROM", "no-reply@localhost"),
		Timeout:  envSecondsOrDefault("SMTP_TIMEOUT_SECONDS", 10),
	})
}

func healthHandler(database *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		} else if err := redisClient.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
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

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
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

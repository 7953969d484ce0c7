// Package config loads all runtime configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for DataCove.
type Config struct {
	HTTP    HTTPConfig
	DB      DBConfig
	Log     LogConfig
	JWT     JWTConfig
	App     AppConfig
	Storage StorageConfig
	Billing BillingConfig
	Email   EmailConfig
	Worker  WorkerConfig
	OTel    OTelConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "datacove.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds JSON Web Token signing and expiry settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AppConfig holds application-level settings.
type AppConfig struct {
	FrontendURL       string // base for invitation / OTP / reset links
	SeedAdminEmail    string
	SeedAdminPassword string
}

// StorageConfig holds S3 object storage settings. When AccessKey is empty
// the process runs with a no-op store (uploads disabled, logged).
type StorageConfig struct {
	Region    string
	AccessKey string
	SecretKey string //nolint:gosec // intentional: holds S3 secret loaded from env
	Endpoint  string // optional, for MinIO and friends
}

// BillingConfig holds payment-processor settings. When SecretKey is empty
// billing endpoints are registered but return 503.
type BillingConfig struct {
	SecretKey     string //nolint:gosec // intentional: holds processor API key loaded from env
	WebhookSecret string //nolint:gosec // intentional: holds webhook signing secret loaded from env
}

// EmailConfig holds transactional email settings. When APIKey is empty
// outbound mail is logged instead of sent.
type EmailConfig struct {
	APIKey string //nolint:gosec // intentional: holds SendGrid API key loaded from env
	From   string
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency int
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent.
func Load() (*Config, error) {
	cfg := &Config{}

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "datacove.db")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	var err error
	cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_TTL", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}

	// App
	cfg.App.FrontendURL = envStr("FRONTEND_URL", "http://localhost:5173")
	cfg.App.SeedAdminEmail = envStr("SEED_ADMIN_EMAIL", "admin@datacove.local")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")

	// Storage
	cfg.Storage.Region = envStr("S3_REGION", "us-east-2")
	cfg.Storage.AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.Storage.SecretKey = os.Getenv("S3_SECRET_KEY")
	cfg.Storage.Endpoint = os.Getenv("S3_ENDPOINT")

	// Billing
	cfg.Billing.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Billing.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	if cfg.Billing.SecretKey != "" && cfg.Billing.WebhookSecret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	// Email
	cfg.Email.APIKey = os.Getenv("SENDGRID_API_KEY")
	cfg.Email.From = envStr("SENDGRID_FROM", "no-reply@datacove.local")

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}

// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment gateway. When StripeSecretKey is empty the server runs
	// with the stub gateway, which signs its own webhooks; only usable
	// in development.
	StripeSecretKey     string
	StripeWebhookSecret string

	// Pricing, in basis points
	FeeRateBPS int64
	TaxRateBPS int64

	// Escrow holds
	HoldPeriod         time.Duration
	ExtendedHoldPeriod time.Duration
	NewPayeeAge        time.Duration
	SweepInterval      time.Duration

	// Security
	RateLimitRPS   int
	AllowedOrigins string // comma-separated CORS origins, empty allows same-host only

	// Tracing
	OTLPEndpoint string // OTLP gRPC collector address (optional, tracing off if not set)
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultFeeRateBPS    = 200  // 2%
	DefaultTaxRateBPS    = 1800 // 18%
	DefaultRateLimit     = 100
	DefaultHoldDays      = 7
	DefaultExtendedDays  = 14
	DefaultNewPayeeDays  = 90
	DefaultSweepInterval = time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		FeeRateBPS:          getEnvInt64("FEE_RATE_BPS", DefaultFeeRateBPS),
		TaxRateBPS:          getEnvInt64("TAX_RATE_BPS", DefaultTaxRateBPS),
		HoldPeriod:          getEnvDays("HOLD_PERIOD_DAYS", DefaultHoldDays),
		ExtendedHoldPeriod:  getEnvDays("EXTENDED_HOLD_PERIOD_DAYS", DefaultExtendedDays),
		NewPayeeAge:         getEnvDays("NEW_PAYEE_AGE_DAYS", DefaultNewPayeeDays),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		AllowedOrigins:      os.Getenv("ALLOWED_ORIGINS"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.StripeSecretKey == "" && c.IsProduction() {
		return fmt.Errorf("STRIPE_SECRET_KEY is required in production")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if c.FeeRateBPS < 0 || c.FeeRateBPS > 10000 {
		return fmt.Errorf("FEE_RATE_BPS must be between 0 and 10000")
	}
	if c.TaxRateBPS < 0 || c.TaxRateBPS > 10000 {
		return fmt.Errorf("TAX_RATE_BPS must be between 0 and 10000")
	}
	if c.HoldPeriod <= 0 || c.ExtendedHoldPeriod < c.HoldPeriod {
		return fmt.Errorf("hold periods must be positive and EXTENDED_HOLD_PERIOD_DAYS >= HOLD_PERIOD_DAYS")
	}
	if c.SweepInterval < time.Second {
		return fmt.Errorf("SWEEP_INTERVAL must be at least 1s")
	}
	return nil
}

// UseStubGateway reports whether the server should run with the
// development stub instead of Stripe.
func (c *Config) UseStubGateway() bool {
	return c.StripeSecretKey == ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDays(key string, defaultDays int) time.Duration {
	days := getEnvInt64(key, int64(defaultDays))
	return time.Duration(days) * 24 * time.Hour
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

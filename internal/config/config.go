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
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment processor
	StripeAPIKey string // Required in production; empty enables the fake processor

	// Escrow settings
	PlatformFeeBps int // Platform commission in basis points of the booking amount

	// Dispute phase windows
	NegotiationWindow time.Duration
	MediationWindow   time.Duration
	ReviewWindow      time.Duration

	// Dispute fees (minor currency units)
	OpenFeeCents       int64
	EscalationFeeCents int64

	// Scheduler
	SchedulerInterval time.Duration
	DeadlineWarning   time.Duration // emit a deadline-approaching event within this window

	// Mediator (AI mediation/arbitration capability)
	MediatorURL     string // empty enables the deterministic static mediator
	MediatorAPIKey  string
	MediatorTimeout time.Duration

	// Security
	RateLimitRPS int

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultPlatformFeeBps    = 1000 // 10%
	DefaultNegotiationWindow = 48 * time.Hour
	DefaultMediationWindow   = 48 * time.Hour
	DefaultReviewWindow      = 24 * time.Hour
	DefaultOpenFee           = int64(1500) // $15.00
	DefaultEscalationFee     = int64(4900) // $49.00
	DefaultSchedulerInterval = 30 * time.Second
	DefaultDeadlineWarning   = 6 * time.Hour
	DefaultMediatorTimeout   = 45 * time.Second
	DefaultRateLimit         = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeAPIKey:       os.Getenv("STRIPE_API_KEY"),
		PlatformFeeBps:     int(getEnvInt64("PLATFORM_FEE_BPS", DefaultPlatformFeeBps)),
		NegotiationWindow:  getEnvDuration("NEGOTIATION_WINDOW", DefaultNegotiationWindow),
		MediationWindow:    getEnvDuration("MEDIATION_WINDOW", DefaultMediationWindow),
		ReviewWindow:       getEnvDuration("REVIEW_WINDOW", DefaultReviewWindow),
		OpenFeeCents:       getEnvInt64("DISPUTE_OPEN_FEE_CENTS", DefaultOpenFee),
		EscalationFeeCents: getEnvInt64("DISPUTE_ESCALATION_FEE_CENTS", DefaultEscalationFee),
		SchedulerInterval:  getEnvDuration("SCHEDULER_INTERVAL", DefaultSchedulerInterval),
		DeadlineWarning:    getEnvDuration("DEADLINE_WARNING_WINDOW", DefaultDeadlineWarning),
		MediatorURL:        os.Getenv("MEDIATOR_URL"),
		MediatorAPIKey:     os.Getenv("MEDIATOR_API_KEY"),
		MediatorTimeout:    getEnvDuration("MEDIATOR_TIMEOUT", DefaultMediatorTimeout),
		RateLimitRPS:       int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PlatformFeeBps < 0 || c.PlatformFeeBps >= 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be in [0, 10000)")
	}

	if c.NegotiationWindow <= 0 || c.MediationWindow <= 0 || c.ReviewWindow <= 0 {
		return fmt.Errorf("dispute phase windows must be positive durations")
	}

	if c.OpenFeeCents < 0 || c.EscalationFeeCents < 0 {
		return fmt.Errorf("dispute fees cannot be negative")
	}

	if c.IsProduction() {
		if c.StripeAPIKey == "" {
			return fmt.Errorf("STRIPE_API_KEY is required in production")
		}
		if c.MediatorURL == "" {
			return fmt.Errorf("MEDIATOR_URL is required in production")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
	}

	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

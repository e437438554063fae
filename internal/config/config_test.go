package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultPlatformFeeBps, cfg.PlatformFeeBps)
	assert.Equal(t, DefaultNegotiationWindow, cfg.NegotiationWindow)
	assert.Equal(t, DefaultMediationWindow, cfg.MediationWindow)
	assert.Equal(t, DefaultReviewWindow, cfg.ReviewWindow)
	assert.Equal(t, DefaultOpenFee, cfg.OpenFeeCents)
	assert.Equal(t, DefaultEscalationFee, cfg.EscalationFeeCents)
	assert.Equal(t, DefaultSchedulerInterval, cfg.SchedulerInterval)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PLATFORM_FEE_BPS", "250")
	t.Setenv("NEGOTIATION_WINDOW", "72h")
	t.Setenv("DISPUTE_OPEN_FEE_CENTS", "0")
	t.Setenv("SCHEDULER_INTERVAL", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250, cfg.PlatformFeeBps)
	assert.Equal(t, 72*time.Hour, cfg.NegotiationWindow)
	assert.Equal(t, int64(0), cfg.OpenFeeCents)
	assert.Equal(t, 5*time.Second, cfg.SchedulerInterval)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PLATFORM_FEE_BPS", "lots")
	t.Setenv("NEGOTIATION_WINDOW", "-3h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPlatformFeeBps, cfg.PlatformFeeBps)
	assert.Equal(t, DefaultNegotiationWindow, cfg.NegotiationWindow)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Env:               "development",
			PlatformFeeBps:    1000,
			NegotiationWindow: time.Hour,
			MediationWindow:   time.Hour,
			ReviewWindow:      time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"fee bps too high", func(c *Config) { c.PlatformFeeBps = 10000 }, "PLATFORM_FEE_BPS"},
		{"negative fee bps", func(c *Config) { c.PlatformFeeBps = -1 }, "PLATFORM_FEE_BPS"},
		{"zero window", func(c *Config) { c.ReviewWindow = 0 }, "phase windows"},
		{"negative dispute fee", func(c *Config) { c.OpenFeeCents = -100 }, "cannot be negative"},
		{"production without stripe", func(c *Config) { c.Env = "production" }, "STRIPE_API_KEY"},
		{"production without mediator", func(c *Config) {
			c.Env = "production"
			c.StripeAPIKey = "sk_live_x"
		}, "MEDIATOR_URL"},
		{"production without database", func(c *Config) {
			c.Env = "production"
			c.StripeAPIKey = "sk_live_x"
			c.MediatorURL = "https://mediator.internal"
		}, "DATABASE_URL"},
		{"production fully configured", func(c *Config) {
			c.Env = "production"
			c.StripeAPIKey = "sk_live_x"
			c.MediatorURL = "https://mediator.internal"
			c.DatabaseURL = "postgres://u:p@db/disputes"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

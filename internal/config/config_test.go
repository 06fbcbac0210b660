package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ticketing")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Booking.PendingPaymentTimeout)
	assert.Equal(t, 60*time.Second, cfg.Booking.ReaperInterval)
	assert.Equal(t, 100, cfg.Booking.ReaperBatchSize)
	assert.Equal(t, 3, cfg.Database.TxMaxAttempts)
	assert.Equal(t, "sandbox", cfg.Payment.PAYable.Environment)
	assert.Nil(t, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ticketing")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PENDING_PAYMENT_TIMEOUT_MINUTES", "15")
	t.Setenv("REAPER_INTERVAL_SECONDS", "30")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Booking.PendingPaymentTimeout)
	assert.Equal(t, 30*time.Second, cfg.Booking.ReaperInterval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0, cfg.Redis.DB, "invalid integers fall back to the default")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://x", TxMaxAttempts: 3},
			JWT:      JWTConfig{Secret: "s"},
			Booking:  BookingConfig{PendingPaymentTimeout: time.Minute, ReaperInterval: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"zero tx attempts", func(c *Config) { c.Database.TxMaxAttempts = 0 }, "DATABASE_TX_MAX_ATTEMPTS"},
		{"zero timeout", func(c *Config) { c.Booking.PendingPaymentTimeout = 0 }, "PENDING_PAYMENT_TIMEOUT_MINUTES"},
		{"half configured stripe", func(c *Config) { c.Payment.Stripe.SecretKey = "sk_test" }, "STRIPE_WEBHOOK_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

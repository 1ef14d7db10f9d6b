package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.NotNil(t, cfg)
	assert.Equal(t, "/api/v1", cfg.GetAPIBasePath())
	assert.Equal(t, 24, cfg.Booking.CancellationPolicyHours)
	assert.False(t, cfg.Booking.AllowLateRequestCancellation)
	assert.Equal(t, uint64(3), cfg.Payments.MaxRetries)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Contains(t, cfg.Database.DSN, "dbname=kitchenhub_db")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CANCELLATION_POLICY_HOURS", "48")
	t.Setenv("OVERSTAY_PENALTY_RATE", "0.75")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CHECKOUT_SWEEP_INTERVAL", "5m")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg := Load()

	assert.Equal(t, 48, cfg.Booking.CancellationPolicyHours)
	assert.InDelta(t, 0.75, cfg.Booking.PenaltyRate, 1e-9)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.CheckoutSweepInterval)
	assert.False(t, cfg.UseSandboxPayments())
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TAX_RATE_PERCENT", "thirteen")
	t.Setenv("JOBS_ENABLED", "maybe")

	cfg := Load()

	assert.InDelta(t, 13.0, cfg.Booking.TaxRatePercent, 1e-9)
	assert.True(t, cfg.Jobs.Enabled)
}

package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := fromEnv()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Nil(t, cfg.Fees.Delivery)
	require.NotNil(t, cfg.Fees.App)
	assert.True(t, cfg.Fees.App.FlatFee.Equal(decimal.NewFromInt(5)))
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("TRACKING_POLL_INTERVAL", "3s")
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("REDIS_DB", "x")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("DELIVERY_BASE_FEE", "30")
	t.Setenv("DELIVERY_MIN_FEE", "25")
	t.Setenv("FREE_DELIVERY_THRESHOLD", "500")
	t.Setenv("APP_FEE_ENABLED", "false")

	cfg := fromEnv()

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Zero(t, cfg.RedisDB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)

	require.NotNil(t, cfg.Fees.Delivery)
	assert.True(t, cfg.Fees.Delivery.BaseFee.Equal(decimal.NewFromInt(30)))
	assert.True(t, cfg.Fees.Delivery.FreeDeliveryThreshold.Equal(decimal.NewFromInt(500)))
	assert.Nil(t, cfg.Fees.App)
}

func TestGetEnvAsDecimal_RejectsNegative(t *testing.T) {
	t.Setenv("APP_FEE", "-3")
	assert.True(t, getEnvAsDecimal("APP_FEE", decimal.NewFromInt(5)).Equal(decimal.NewFromInt(5)))
}

package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, int32(2), cfg.DecimalPlaces)
	assert.Equal(t, 100, cfg.ResolverPageSize)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.True(t, cfg.TransferFeeFlat.IsZero())
	assert.True(t, cfg.IsDev())
}

func TestLoadRequiresDatabaseOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("PORT", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("DEFAULT_DECIMAL_PLACES", "4")
	t.Setenv("TRANSFER_FEE_FLAT", "2")
	t.Setenv("TRANSFER_FEE_BPS", "150")
	t.Setenv("RESOLVER_PAGE_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, int32(4), cfg.DecimalPlaces)
	assert.True(t, cfg.TransferFeeFlat.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int64(150), cfg.TransferFeeBps)
	assert.Equal(t, 25, cfg.ResolverPageSize)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	t.Run("bps out of range", func(t *testing.T) {
		t.Setenv("TRANSFER_FEE_BPS", "20000")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad precision", func(t *testing.T) {
		t.Setenv("DEFAULT_DECIMAL_PLACES", "12")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("IDEMPOTENCY_TTL", "soon")
		_, err := Load()
		assert.Error(t, err)
	})
}

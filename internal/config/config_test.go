package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.DocumentProvider)
	assert.Equal(t, "memory", cfg.Cache.Provider)
	assert.Equal(t, "profileComplete", cfg.Rewards.ProfileBadgeID)
	assert.Equal(t, "buddyBuilder", cfg.Rewards.ReferralBadgeID)
	assert.Equal(t, 24*time.Hour, cfg.Rewards.ImageCacheWindow)
	assert.Equal(t, 30*time.Second, cfg.Rewards.ImageProbeTimeout)
	assert.Equal(t, 10, cfg.Rewards.ImageConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Store.OperationTimeout)
	assert.Equal(t, 10*time.Second, cfg.Functions.Timeout)
	assert.Equal(t, "@daily", cfg.Rewards.ReconcileSchedule)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("REWARDS_IMAGE_CONCURRENCY", "4")
	t.Setenv("REWARDS_IMAGE_CACHE_WINDOW", "1h")
	t.Setenv("FUNCTIONS_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Rewards.ImageConcurrency)
	assert.Equal(t, time.Hour, cfg.Rewards.ImageCacheWindow)
	assert.Equal(t, 2.5, cfg.Functions.RPS)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORSOrigins)
}

func TestLoadRejectsInvalidProviders(t *testing.T) {
	t.Setenv("GO_ENV", "test")

	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("STORE_PROVIDER", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("redis without url", func(t *testing.T) {
		t.Setenv("CACHE_PROVIDER", "redis")
		t.Setenv("REDIS_URL", "")
		_, err := Load()
		assert.ErrorContains(t, err, "REDIS_URL")
	})

	t.Run("unknown blob provider", func(t *testing.T) {
		t.Setenv("BLOB_PROVIDER", "s3")
		_, err := Load()
		assert.ErrorContains(t, err, "BLOB_PROVIDER")
	})
}

func TestFunctionsSecretRequiredInProduction(t *testing.T) {
	f := FunctionsConfig{BaseURL: "https://functions.test", Timeout: time.Second}
	assert.Error(t, f.Validate(true))
	assert.NoError(t, f.Validate(false))
}

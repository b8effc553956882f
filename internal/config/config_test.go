package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("TIMEZONE", "")
	t.Setenv("IDEMPOTENCY_ENABLED", "")
	t.Setenv("MAPPING_CACHE_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address())
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.IdempotencyEnabled)
	assert.Equal(t, 10*time.Minute, cfg.MappingCacheTTL)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9000")
	t.Setenv("TIMEZONE", "Africa/Johannesburg")
	t.Setenv("IDEMPOTENCY_ENABLED", "true")
	t.Setenv("MAPPING_CACHE_TTL", "30s")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Address())
	assert.Equal(t, "Africa/Johannesburg", cfg.Location.String())
	assert.True(t, cfg.IdempotencyEnabled)
	assert.Equal(t, 30*time.Second, cfg.MappingCacheTTL)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/coderats")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := fromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, 6*time.Hour, cfg.RankInterval)
	assert.Equal(t, 5, cfg.RankBatchSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.RankBatchDelay)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.AdminEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("RANK_BATCH_SIZE", "10")
	t.Setenv("RANK_INTERVAL", "30m")
	t.Setenv("ADMIN_USERNAME", "root")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abc")

	cfg, err := fromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 10, cfg.RankBatchSize)
	assert.Equal(t, 30*time.Minute, cfg.RankInterval)
	assert.True(t, cfg.AdminEnabled())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("RANK_BATCH_DELAY", "soon")

	_, err := fromViper(newViper())
	assert.ErrorContains(t, err, "RANK_BATCH_DELAY")
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "DATABASE_URL")
	assert.ErrorContains(t, err, "JWT_SECRET")

	cfg = &Config{DatabaseURL: "postgres://x", JWTSecret: "short"}
	assert.ErrorContains(t, cfg.Validate(), "at least 32 bytes")

	cfg = &Config{DatabaseURL: "postgres://x", JWTSecret: "0123456789abcdef0123456789abcdef", AdminUsername: "root"}
	assert.ErrorContains(t, cfg.Validate(), "ADMIN_PASSWORD_HASH")
}

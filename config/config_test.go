package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()

	t.Setenv("DATABASE_DSN", "postgres://localhost/dashboard")
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.Cache.MaxAge)
	assert.Equal(t, 3, cfg.Scheduler.Concurrency)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Refresh.Threshold)
	assert.False(t, cfg.OAuth.Facebook.Configured())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_CAPACITY", "50")
	t.Setenv("SCHEDULER_CONCURRENCY", "8")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "2")
	t.Setenv("FACEBOOK_CLIENT_ID", "fb-app")
	t.Setenv("FACEBOOK_CLIENT_SECRET", "fb-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
	assert.Equal(t, 2, cfg.Breaker.FailureThreshold)
	assert.True(t, cfg.OAuth.Facebook.Configured())
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("ENCRYPTION_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadBadKeyLength(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/dashboard")
	t.Setenv("ENCRYPTION_KEY", "too-short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadInvalidTunable(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_CAPACITY", "0")

	_, err := Load()
	assert.Error(t, err)
}

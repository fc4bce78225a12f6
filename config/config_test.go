package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.SessionTTL)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_TTL_SECONDS", "120")
	t.Setenv("REDIS_DB", "3")

	cfg := LoadConfig()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 120*time.Second, cfg.SessionTTL)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadConfigIgnoresInvalidInt(t *testing.T) {
	t.Setenv("SESSION_TTL_SECONDS", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, 60*time.Second, cfg.SessionTTL)
}

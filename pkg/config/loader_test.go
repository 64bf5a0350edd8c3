package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should load defaults when no environment is set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 5001, cfg.Server.Port)
		assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
		assert.Equal(t, 1000, cfg.RateLimit.DefaultHourlyLimit)
	})
	t.Run("Should overlay environment variables", func(t *testing.T) {
		t.Setenv("CARDMART_SERVER_PORT", "8080")
		t.Setenv("CARDMART_LOG_LEVEL", "debug")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Log.Level)
	})
	t.Run("Should reject invalid log level", func(t *testing.T) {
		t.Setenv("CARDMART_LOG_LEVEL", "verbose")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestTransformEnvKey(t *testing.T) {
	t.Run("Should map env names to koanf paths", func(t *testing.T) {
		assert.Equal(t, "server.read_timeout", transformEnvKey("CARDMART_SERVER_READ_TIMEOUT"))
		assert.Equal(t, "ratelimit.default_hourly_limit", transformEnvKey("CARDMART_RATELIMIT_DEFAULT_HOURLY_LIMIT"))
	})
}

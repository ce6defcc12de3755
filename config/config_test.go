package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, ":8000", cfg.Addr())
	assert.Equal(t, "google-key", cfg.GeminiAPIKey)
	assert.Equal(t, "openai-key", cfg.OpenAIAPIKey)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, DefaultAllowedOrigins, cfg.AllowedOrigins)
	assert.Zero(t, cfg.GeminiTimeout)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 30*time.Second, cfg.KeepAlivePeriod)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigMissingGoogleKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "openai-key")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}

func TestLoadConfigMissingOpenAIKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadConfigGeminiKeyAlias(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "alias-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "alias-key", cfg.GeminiAPIKey)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")
	t.Setenv("GEMINI_TIMEOUT", "15")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("REDIS_URL", "localhost:6379")
	t.Setenv("SESSION_TTL", "5")
	t.Setenv("KEEPALIVE_PERIOD", "0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, 15*time.Second, cfg.GeminiTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Zero(t, cfg.KeepAlivePeriod)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigInvalidNumbers(t *testing.T) {
	for _, key := range []string{"PORT", "GEMINI_TIMEOUT", "SESSION_TTL", "KEEPALIVE_PERIOD"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "abc")

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

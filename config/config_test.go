package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears key for the test; t.Setenv restores it afterwards.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetenv(t, "LLM_PROVIDER", "ARCANA_LLM_PROVIDER", "DATABASE_PATH", "ARCANA_DATABASE_PATH",
		"TICK_INTERVAL", "ARCANA_TICK_INTERVAL", "ORACLE_TIMEOUT", "ARCANA_ORACLE_TIMEOUT",
		"ORACLE_MAX_TOKENS", "ARCANA_ORACLE_MAX_TOKENS", "USER_ID", "ARCANA_USER_ID",
		"DEFAULT_TIMEZONE", "ARCANA_DEFAULT_TIMEZONE")
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, "./arcana.db", cfg.DatabasePath)
	assert.Equal(t, 60*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 900, cfg.OracleMaxTokens)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, "local", cfg.UserID)
}

func TestLoadPrefixedAndUnprefixed(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	unsetenv(t, "ARCANA_LLM_PROVIDER", "DEFAULT_TIMEZONE", "ARCANA_DEFAULT_TIMEZONE")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("ARCANA_ORACLE_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLMProvider)
	assert.Equal(t, 5*time.Second, cfg.OracleTimeout)
}

func TestValidate(t *testing.T) {
	base := Config{LLMProvider: "anthropic", OracleMaxTokens: 900, TickInterval: time.Minute}
	require.NoError(t, base.Validate())

	bad := base
	bad.LLMProvider = "gemini"
	assert.Error(t, bad.Validate())

	bad = base
	bad.TickInterval = time.Millisecond
	assert.Error(t, bad.Validate())

	bad = base
	bad.DefaultTimezone = "Not/AZone"
	assert.Error(t, bad.Validate())
}

func TestAPIKey(t *testing.T) {
	c := Config{LLMProvider: "openai", OpenAIKey: "o", AnthropicKey: "a"}
	assert.Equal(t, "o", c.APIKey())
	c.LLMProvider = "anthropic"
	assert.Equal(t, "a", c.APIKey())
}

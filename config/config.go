// Package config loads arcana's settings from the environment.
//
// Values come from ~/.arcana/config and a local .env (neither overrides an
// already-set variable), then from the process environment. Every variable
// may carry the ARCANA_ prefix; the unprefixed name is honoured as well.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "ARCANA"

type Config struct {
	LLMProvider    string `envconfig:"LLM_PROVIDER" default:"anthropic"` // anthropic, openai, ollama
	AnthropicKey   string `envconfig:"ANTHROPIC_API_KEY"`                // API key (X-Api-Key header)
	AnthropicToken string `envconfig:"ANTHROPIC_AUTH_TOKEN"`             // OAuth token (Authorization: Bearer header)
	OpenAIKey      string `envconfig:"OPENAI_API_KEY"`
	LLMModel       string `envconfig:"LLM_MODEL"`
	OllamaBaseURL  string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434/v1"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"./arcana.db"`
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":8080"`

	DiscordToken   string `envconfig:"DISCORD_BOT_TOKEN"`
	DiscordWebhook string `envconfig:"DISCORD_WEBHOOK_URL"`

	OracleTimeout   time.Duration `envconfig:"ORACLE_TIMEOUT" default:"60s"`
	OracleMaxTokens int           `envconfig:"ORACLE_MAX_TOKENS" default:"900"`
	PromptBudget    int           `envconfig:"ORACLE_PROMPT_BUDGET" default:"4000"`
	TickInterval    time.Duration `envconfig:"TICK_INTERVAL" default:"60s"`

	RemoteDeck    bool   `envconfig:"REMOTE_DECK" default:"false"`
	RemoteDeckURL string `envconfig:"REMOTE_DECK_URL" default:"https://tarotapi.dev/api/v1"`

	// DefaultTimezone is offered when a journey is begun without a zone.
	DefaultTimezone string `envconfig:"DEFAULT_TIMEZONE"`
	// UserID identifies the local user for the REPL and one-shot commands.
	UserID string `envconfig:"USER_ID" default:"local"`
}

func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arcana"
	}
	return filepath.Join(home, ".arcana")
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config")
}

func Load() (*Config, error) {
	_ = godotenv.Load(ConfigFile()) // ignore error if missing
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER: %s", c.LLMProvider)
	}
	if c.OracleMaxTokens <= 0 {
		return fmt.Errorf("ORACLE_MAX_TOKENS must be positive, got %d", c.OracleMaxTokens)
	}
	if c.TickInterval < time.Second {
		return fmt.Errorf("TICK_INTERVAL must be at least 1s, got %s", c.TickInterval)
	}
	if c.DefaultTimezone != "" {
		if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
			return fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
		}
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIKey
	}
	return c.AnthropicKey
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/cookbook/internal/domain"
	"github.com/davidbz/cookbook/internal/observability"
	"github.com/davidbz/cookbook/internal/provider/anthropic"
	"github.com/davidbz/cookbook/internal/provider/ollama"
	"github.com/davidbz/cookbook/internal/provider/openai"
)

// Config represents the service configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Log       observability.LoggerConfig
	LLM       LLMConfig
	OpenAI    openai.Config
	Anthropic anthropic.Config
	Ollama    ollama.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"90"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Request-ID"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// LLMConfig selects the provider and bounds every logical call.
// MaxRetries is the total number of attempts, not the number of retries.
type LLMConfig struct {
	Provider      string  `env:"LLM_PROVIDER"        envDefault:"ollama"`
	Model         string  `env:"LLM_MODEL"           envDefault:"llama3"`
	Temperature   float64 `env:"LLM_TEMPERATURE"     envDefault:"0.2"`
	MaxTokens     int     `env:"LLM_MAX_TOKENS"`
	TimeoutS      int     `env:"LLM_TIMEOUT_S"       envDefault:"60"`
	MaxRetries    int     `env:"LLM_MAX_RETRIES"     envDefault:"3"`
	BackoffBaseMS int     `env:"LLM_BACKOFF_BASE_MS" envDefault:"1000"`
	BackoffCapMS  int     `env:"LLM_BACKOFF_CAP_MS"  envDefault:"8000"`
	AIEnabled     bool    `env:"AI_ENABLED"          envDefault:"true"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*observability.LoggerConfig
	*domain.ProviderConfig
}

// Load loads environment files and parses configuration.
func Load() (*Config, error) {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if _, err := cfg.ProviderConfig(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ProviderConfig resolves the selected provider's settings. The result is
// never mutated afterwards.
func (c *Config) ProviderConfig() (*domain.ProviderConfig, error) {
	name, ok := domain.ParseProviderName(strings.ToLower(strings.TrimSpace(c.LLM.Provider)))
	if !ok {
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q: expected openai, anthropic or ollama", c.LLM.Provider)
	}

	if c.LLM.MaxRetries < 1 {
		return nil, fmt.Errorf("LLM_MAX_RETRIES must be at least 1, got %d", c.LLM.MaxRetries)
	}

	temperature := c.LLM.Temperature
	pc := &domain.ProviderConfig{
		Provider:    name,
		Model:       c.LLM.Model,
		Timeout:     time.Duration(c.LLM.TimeoutS) * time.Second,
		MaxAttempts: c.LLM.MaxRetries,
		BaseDelay:   time.Duration(c.LLM.BackoffBaseMS) * time.Millisecond,
		CapDelay:    time.Duration(c.LLM.BackoffCapMS) * time.Millisecond,
		AIEnabled:   c.LLM.AIEnabled,
		Temperature: &temperature,
	}

	if c.LLM.MaxTokens > 0 {
		maxTokens := c.LLM.MaxTokens
		pc.MaxOutputTokens = &maxTokens
	}

	switch name {
	case domain.ProviderOpenAI:
		pc.BaseURL = c.OpenAI.BaseURL
		pc.APIKey = c.OpenAI.APIKey
	case domain.ProviderAnthropic:
		pc.BaseURL = c.Anthropic.BaseURL
		pc.APIKey = c.Anthropic.APIKey
		pc.AnthropicVersion = c.Anthropic.Version
	case domain.ProviderOllama:
		pc.BaseURL = c.Ollama.BaseURL
	}

	return pc, nil
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) (DepConfig, error) {
	pc, err := cfg.ProviderConfig()
	if err != nil {
		return DepConfig{}, err
	}

	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Log,
		pc,
	}, nil
}

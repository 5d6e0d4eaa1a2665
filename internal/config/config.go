package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	LogLevel       string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir  string   `mapstructure:"MIGRATIONS_DIR"`
	DataDir        string   `mapstructure:"DATA_DIR"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	EmbedProvider   string  `mapstructure:"EMBED_PROVIDER"`
	EmbedModel      string  `mapstructure:"EMBED_MODEL"`
	EmbedDimensions int     `mapstructure:"EMBED_DIMENSIONS"`
	EmbedRPS        float64 `mapstructure:"EMBED_RPS"`
	EmbedCacheDir   string  `mapstructure:"EMBED_CACHE_DIR"`
	OllamaURL       string  `mapstructure:"OLLAMA_URL"`
	GeminiAPIKey    string  `mapstructure:"GEMINI_API_KEY"`

	LLMProvider     string        `mapstructure:"LLM_PROVIDER"`
	LLMModel        string        `mapstructure:"LLM_MODEL"`
	LLMMaxTokens    int           `mapstructure:"LLM_MAX_TOKENS"`
	LLMTimeout      time.Duration `mapstructure:"LLM_TIMEOUT"`
	LLMTemperature  float64       `mapstructure:"LLM_TEMPERATURE"`
	LLMRPS          float64       `mapstructure:"LLM_RPS"`
	AnthropicAPIKey string        `mapstructure:"ANTHROPIC_API_KEY"`

	PipelineFile     string `mapstructure:"PIPELINE_FILE"`
	PipelineSchedule string `mapstructure:"PIPELINE_SCHEDULE"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR", "DATA_DIR",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"EMBED_PROVIDER", "EMBED_MODEL", "EMBED_DIMENSIONS", "EMBED_RPS", "EMBED_CACHE_DIR",
	"OLLAMA_URL", "GEMINI_API_KEY",
	"LLM_PROVIDER", "LLM_MODEL", "LLM_MAX_TOKENS", "LLM_TIMEOUT", "LLM_TEMPERATURE", "LLM_RPS",
	"ANTHROPIC_API_KEY",
	"PIPELINE_FILE", "PIPELINE_SCHEDULE",
}

// Load reads configuration from the environment and an optional .env file.
// DATABASE_URL is not checked here; commands that connect call RequireDatabase.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("DATA_DIR", "data/raw")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("EMBED_PROVIDER", "hash")
	v.SetDefault("EMBED_DIMENSIONS", 768)
	v.SetDefault("EMBED_RPS", 5)
	v.SetDefault("OLLAMA_URL", "http://localhost:11434")
	v.SetDefault("LLM_PROVIDER", "extractive")
	v.SetDefault("LLM_MAX_TOKENS", 1024)
	v.SetDefault("LLM_TIMEOUT", "60s")
	v.SetDefault("LLM_TEMPERATURE", 0.2)
	v.SetDefault("LLM_RPS", 1)
	v.SetDefault("PIPELINE_FILE", "pipeline.yaml")

	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = defaultEmbedModel(cfg.EmbedProvider)
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultLLMModel(cfg.LLMProvider)
	}

	return cfg, nil
}

func defaultEmbedModel(provider string) string {
	switch provider {
	case "genai":
		return "gemini-embedding-001"
	case "ollama":
		return "nomic-embed-text"
	default:
		return "hash-v1"
	}
}

func defaultLLMModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-5"
	case "gemini":
		return "gemini-2.5-flash"
	default:
		return "extractive"
	}
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the service is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RequireDatabase returns an error when DATABASE_URL is missing.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

var (
	validEmbedProviders = map[string]bool{"hash": true, "genai": true, "ollama": true}
	validLLMProviders   = map[string]bool{"extractive": true, "anthropic": true, "gemini": true}
)

// Validate checks that provider selections are known and carry the
// credentials they need, and that production runs with real authentication.
func (c *Config) Validate() error {
	if !validEmbedProviders[c.EmbedProvider] {
		return fmt.Errorf("EMBED_PROVIDER must be \"hash\", \"genai\", or \"ollama\", got %q", c.EmbedProvider)
	}
	if !validLLMProviders[c.LLMProvider] {
		return fmt.Errorf("LLM_PROVIDER must be \"extractive\", \"anthropic\", or \"gemini\", got %q", c.LLMProvider)
	}
	if c.EmbedDimensions <= 0 {
		return fmt.Errorf("EMBED_DIMENSIONS must be positive, got %d", c.EmbedDimensions)
	}
	if c.EmbedProvider == "genai" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when EMBED_PROVIDER is \"genai\"")
	}
	if c.LLMProvider == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER is \"gemini\"")
	}
	if c.LLMProvider == "anthropic" && c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER is \"anthropic\"")
	}
	if c.IsProduction() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set in production")
	}
	return nil
}

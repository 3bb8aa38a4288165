// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, .env supported)
//  2. Config file (./config.yaml or ~/.reviewly/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - OpenRouter: chat-completion endpoint, model, sampling parameters
//   - Embedding: embedding endpoint and vector dimension
//   - Storage: PostgreSQL connection (see storage.go)
//   - Chat: tool-round ceiling, session idle timeout, history retention
//   - Observability: OTLP tracing (see observability.go)
//
// Security: sensitive values (API keys, passwords) are never logged; both
// MarshalJSON and String mask them.
//
// Error handling uses sentinel errors so callers can check with errors.Is();
// wrap with context using fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidTopP indicates the top_p value is out of range.
	ErrInvalidTopP = errors.New("invalid top_p")

	// ErrInvalidMaxToolRounds indicates the tool-round ceiling is out of range.
	ErrInvalidMaxToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidEmbeddingModel indicates the embedding model is invalid.
	ErrInvalidEmbeddingModel = errors.New("invalid embedding model")

	// ErrInvalidEmbeddingDimension indicates the embedding dimension does not
	// match the pgvector schema.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrInvalidHistoryRetention indicates the history retention is out of range.
	ErrInvalidHistoryRetention = errors.New("invalid history retention")

	// ErrInvalidIdleTimeout indicates the session idle timeout is negative.
	ErrInvalidIdleTimeout = errors.New("invalid session idle timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultModel is the chat model requested from OpenRouter when no
	// override is configured.
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultEmbeddingModel produces the 1024-dimension vectors the review
	// tables are declared with. Changing the model requires a migration of
	// every stored embedding; see EmbeddingDimension.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// EmbeddingDimension is the pgvector column width for review embeddings.
	EmbeddingDimension = 1024

	// DefaultMaxToolRounds bounds the request/tool-result loop of a single
	// user turn. Each round is one upstream completion request.
	DefaultMaxToolRounds = 8

	// DefaultHistoryRetention is how many past search queries are kept per
	// user; the oldest row is evicted on overflow.
	DefaultHistoryRetention = 5

	// DefaultSessionIdleTimeout is how long a session may sit untouched
	// before the registry evicts it. Zero disables eviction.
	DefaultSessionIdleTimeout = 30 * time.Minute
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys), update MarshalJSON.
type Config struct {
	// OpenRouter chat-completion configuration
	OpenRouterAPIKey  string  `mapstructure:"openrouter_api_key" json:"openrouter_api_key"` // SENSITIVE: masked in MarshalJSON
	OpenRouterBaseURL string  `mapstructure:"openrouter_base_url" json:"openrouter_base_url"`
	ModelName         string  `mapstructure:"model_name" json:"model_name"`
	Temperature       float32 `mapstructure:"temperature" json:"temperature"`
	TopP              float32 `mapstructure:"top_p" json:"top_p"`

	// Embedding service configuration
	EmbeddingAPIKey  string `mapstructure:"embedding_api_key" json:"embedding_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbeddingBaseURL string `mapstructure:"embedding_base_url" json:"embedding_base_url"`
	EmbeddingModel   string `mapstructure:"embedding_model" json:"embedding_model"`

	// Chat orchestration configuration
	MaxToolRounds      int           `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`
	HistoryRetention   int           `mapstructure:"history_retention" json:"history_retention"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" json:"session_idle_timeout"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
// A .env file in the working directory is loaded first, if present.
func Load() (*Config, error) {
	// .env is a convenience for local development; absence is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Debug("skipping .env", "error", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".reviewly")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL takes priority over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// OpenRouter defaults. Temperature and top_p are the sampling parameters
	// sent with every completion request.
	viper.SetDefault("openrouter_base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("model_name", DefaultModel)
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("top_p", 1.0)

	// Embedding defaults
	viper.SetDefault("embedding_base_url", "https://api.openai.com/v1")
	viper.SetDefault("embedding_model", DefaultEmbeddingModel)

	// Chat defaults
	viper.SetDefault("max_tool_rounds", DefaultMaxToolRounds)
	viper.SetDefault("history_retention", DefaultHistoryRetention)
	viper.SetDefault("session_idle_timeout", DefaultSessionIdleTimeout)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "reviewly")
	viper.SetDefault("postgres_password", "reviewly_dev_password")
	viper.SetDefault("postgres_db_name", "reviewly")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Tracing defaults
	viper.SetDefault("tracing.agent_host", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "reviewly")
}

// bindEnvVariables binds environment variables explicitly. Secrets are only
// ever read from the environment, never from config.yaml.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openrouter_api_key", "OPENROUTER_API_KEY")
	mustBind("openrouter_base_url", "OPENROUTER_BASE_URL")
	mustBind("model_name", "REVIEWLY_MODEL_NAME")

	mustBind("embedding_api_key", "EMBEDDING_API_KEY")
	mustBind("embedding_base_url", "EMBEDDING_BASE_URL")
	mustBind("embedding_model", "EMBEDDING_MODEL")

	mustBind("max_tool_rounds", "REVIEWLY_MAX_TOOL_ROUNDS")
	mustBind("session_idle_timeout", "REVIEWLY_SESSION_IDLE_TIMEOUT")

	mustBind("tracing.agent_host", "OTEL_AGENT_HOST")
	mustBind("tracing.environment", "REVIEWLY_ENVIRONMENT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against the
// original secret.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked; longer secrets keep the first and last two
// characters for debug utility. This defends against accidental logging, not
// against an adversary with log access; rotate secrets if logs leak.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - OpenRouterAPIKey
//   - EmbeddingAPIKey
//   - PostgresPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenRouterAPIKey = maskSecret(a.OpenRouterAPIKey)
	a.EmbeddingAPIKey = maskSecret(a.EmbeddingAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

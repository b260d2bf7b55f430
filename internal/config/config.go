// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables
//  2. Config file (~/.nebula/config.yaml)
//  3. Defaults
//
// Categories:
//   - AI: chat-completion gateway URL, API key, model, token cap
//   - Storage: PostgreSQL connection (see storage.go)
//   - Registry: external tool registry (MCP) endpoint
//   - Server: listen address, CORS origins, rate limiting
//
// Sensitive values (API key, database password) are masked in MarshalJSON.
// Load validates immediately and fails fast on invalid configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration problems. Check with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the AI gateway API key is not set.
	ErrMissingAPIKey = errors.New("missing AI API key")

	// ErrMissingAIBaseURL indicates the AI gateway base URL is not set.
	ErrMissingAIBaseURL = errors.New("missing AI base URL")

	// ErrInvalidAIBaseURL indicates the AI gateway base URL is malformed.
	ErrInvalidAIBaseURL = errors.New("invalid AI base URL")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxTokens indicates the completion token cap is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidAddr indicates the listen address is invalid.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRegistryURL indicates the tool registry endpoint is malformed.
	ErrInvalidRegistryURL = errors.New("invalid registry URL")
)

const (
	// DefaultModel is the model used when none is configured or supplied by
	// the client. Matches the gateway's model naming scheme.
	DefaultModel = "google-ai-studio/gemini-2.5-flash"

	// DefaultMaxTokens caps generated tokens per completion request.
	DefaultMaxTokens = 16000

	// MaxAllowedTokens is the absolute upper bound for the token cap.
	MaxAllowedTokens = 128000
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON.
type Config struct {
	// Server
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// AI gateway (OpenAI-compatible chat completions)
	AIBaseURL string `mapstructure:"ai_base_url" json:"ai_base_url"`
	AIAPIKey  string `mapstructure:"ai_api_key" json:"ai_api_key"` // SENSITIVE
	Model     string `mapstructure:"model" json:"model"`
	MaxTokens int    `mapstructure:"max_tokens" json:"max_tokens"`

	// External tool registry (MCP streamable HTTP endpoint, optional)
	RegistryURL     string `mapstructure:"registry_url" json:"registry_url"`
	RegistryTimeout int    `mapstructure:"registry_timeout" json:"registry_timeout"` // seconds

	// PostgreSQL (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".nebula")
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
		// Missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
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
	viper.SetDefault("addr", "localhost:8787")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	viper.SetDefault("model", DefaultModel)
	viper.SetDefault("max_tokens", DefaultMaxTokens)

	viper.SetDefault("registry_timeout", 5)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "nebula")
	viper.SetDefault("postgres_password", "nebula_dev_password")
	viper.SetDefault("postgres_db_name", "nebula")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variable overrides.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("addr", "NEBULA_ADDR")
	mustBind("cors_origins", "NEBULA_CORS_ORIGINS")
	mustBind("trust_proxy", "NEBULA_TRUST_PROXY")
	mustBind("rate_burst", "NEBULA_RATE_BURST")

	mustBind("ai_base_url", "NEBULA_AI_BASE_URL")
	mustBind("ai_api_key", "NEBULA_AI_API_KEY")
	mustBind("model", "NEBULA_MODEL")
	mustBind("max_tokens", "NEBULA_MAX_TOKENS")

	mustBind("registry_url", "NEBULA_REGISTRY_URL")

	mustBind("log_level", "NEBULA_LOG_LEVEL")
	mustBind("log_json", "NEBULA_LOG_JSON")
}

// MarshalJSON masks sensitive fields so configs can be logged safely.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.AIAPIKey != "" {
		masked.AIAPIKey = "***"
	}
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	return json.Marshal(masked)
}

// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (SYNTELLIX_* runtime override)
//  2. Config file (/etc/syntellix/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Model: chat/embedding/rerank provider selection and credentials
//   - Postgres: durable store and vector index connection (see storage.go)
//   - Redis: conversation recency cache
//   - RAG: retrieval defaults (top_n, similarity threshold) and cache bounds
//
// Error handling uses sentinel errors so callers can branch with errors.Is().
// Sensitive values (passwords, API keys) are never logged.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required model API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the chat provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidRedisAddr indicates the Redis address is invalid.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidTopN indicates the retrieval top_n default is out of range.
	ErrInvalidTopN = errors.New("invalid top_n")

	// ErrInvalidThreshold indicates the similarity threshold is out of [0,1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidCacheLimit indicates the message cache limit is out of range.
	ErrInvalidCacheLimit = errors.New("invalid cache limit")
)

// Defaults applied when an agent carries no advanced configuration and when
// the config file leaves RAG settings unset.
const (
	// DefaultTopN is the default number of nodes retrieved per query.
	DefaultTopN = 5

	// DefaultSimilarityThreshold is the default rerank-score cutoff.
	DefaultSimilarityThreshold float32 = 0.5

	// DefaultCacheLimit bounds the per-conversation recency cache.
	DefaultCacheLimit = 20

	// DefaultCacheTTL is the idle expiry for cached conversation history.
	DefaultCacheTTL = 7 * 24 * time.Hour

	// DefaultEmbedDimension matches the pgvector schema; see db/migrations.
	DefaultEmbedDimension = 768
)

// Chat provider identifiers used in Config.Model.ChatProvider.
const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
)

// ModelConfig selects and configures the external model endpoints.
type ModelConfig struct {
	ChatProvider   string  `mapstructure:"chat_provider"`
	ChatModel      string  `mapstructure:"chat_model"`
	ChatAPIKey     string  `mapstructure:"chat_api_key"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	EmbedModel     string  `mapstructure:"embed_model"`
	EmbedAPIKey    string  `mapstructure:"embed_api_key"`
	EmbedDimension int     `mapstructure:"embed_dimension"`
	RerankBaseURL  string  `mapstructure:"rerank_base_url"`
}

// RedisConfig configures the conversation recency cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RAGConfig carries retrieval and cache defaults.
type RAGConfig struct {
	TopN                int           `mapstructure:"top_n"`
	SimilarityThreshold float32       `mapstructure:"similarity_threshold"`
	CacheLimit          int           `mapstructure:"cache_limit"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
}

// Config stores application configuration.
type Config struct {
	Model ModelConfig `mapstructure:"model"`
	Redis RedisConfig `mapstructure:"redis"`
	RAG   RAGConfig   `mapstructure:"rag"`

	// PostgreSQL connection (see storage.go for DSN/URL helpers)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// ImageDir is the root directory for persisted chunk images.
	ImageDir string `mapstructure:"image_dir"`

	// ListenAddr is the HTTP API bind address.
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads configuration from file and environment.
// path may be empty, in which case only defaults and env vars apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SYNTELLIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/syntellix")
		v.AddConfigPath(".")
		// A missing config file is fine; env + defaults still apply.
		var nf viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &nf) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}
	if err := cfg.parseRedisURL(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.chat_provider", ProviderGemini)
	v.SetDefault("model.chat_model", "gemini-2.5-flash")
	v.SetDefault("model.temperature", 0.3)
	v.SetDefault("model.max_tokens", 4096)
	v.SetDefault("model.embed_model", "gemini-embedding-001")
	v.SetDefault("model.embed_dimension", DefaultEmbedDimension)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rag.top_n", DefaultTopN)
	v.SetDefault("rag.similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("rag.cache_limit", DefaultCacheLimit)
	v.SetDefault("rag.cache_ttl", DefaultCacheTTL)

	v.SetDefault("postgres_host", "127.0.0.1")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "syntellix")
	v.SetDefault("postgres_db_name", "syntellix")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("image_dir", "/var/lib/syntellix/images")
	v.SetDefault("listen_addr", "127.0.0.1:8080")
}

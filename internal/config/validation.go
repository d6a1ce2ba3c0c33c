package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for structural problems. It returns the
// first violation found, wrapped around the matching sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Model.ChatProvider {
	case ProviderGemini, ProviderClaude:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Model.ChatProvider, ProviderGemini, ProviderClaude)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (expected 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	if strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidRedisAddr)
	}

	if c.RAG.TopN < 1 || c.RAG.TopN > 100 {
		return fmt.Errorf("%w: %d (expected 1-100)", ErrInvalidTopN, c.RAG.TopN)
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: %g (expected 0-1)", ErrInvalidThreshold, c.RAG.SimilarityThreshold)
	}
	if c.RAG.CacheLimit < 1 || c.RAG.CacheLimit > 1000 {
		return fmt.Errorf("%w: %d (expected 1-1000)", ErrInvalidCacheLimit, c.RAG.CacheLimit)
	}

	return nil
}

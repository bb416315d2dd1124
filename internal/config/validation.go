package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidEmbeddingDim indicates the embedding dimension is invalid.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidConcurrency indicates the fetch concurrency is invalid.
	ErrInvalidConcurrency = errors.New("invalid fetch concurrency")

	// ErrInvalidChunkBounds indicates the chunk length bounds are invalid.
	ErrInvalidChunkBounds = errors.New("invalid chunk length bounds")

	// ErrInvalidRetrievalLimits indicates the retrieval constants are invalid.
	ErrInvalidRetrievalLimits = errors.New("invalid retrieval limits")

	// ErrInvalidWikiURL indicates the wiki API URL is missing or malformed.
	ErrInvalidWikiURL = errors.New("invalid wiki API URL")

	// ErrInvalidInterval indicates a scheduler interval is invalid.
	ErrInvalidInterval = errors.New("invalid scheduler interval")
)

var validSSLModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true,
	"require": true, "verify-ca": true, "verify-full": true,
}

// Validate checks the configuration for values that would fail at
// runtime. It returns the first problem found, wrapped around a
// sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return ErrInvalidPostgresDBName
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.EmbeddingDim < 1 || c.EmbeddingDim > 4096 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbeddingDim, c.EmbeddingDim)
	}

	if c.FetchConcurrency < 1 || c.FetchConcurrency > 64 {
		return fmt.Errorf("%w: %d (must be 1-64)", ErrInvalidConcurrency, c.FetchConcurrency)
	}
	if c.FetchDelay < 0 || c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: delay=%s timeout=%s", ErrInvalidConcurrency, c.FetchDelay, c.FetchTimeout)
	}

	if c.ChunkMinChars < 1 || c.ChunkMaxChars <= c.ChunkMinChars {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidChunkBounds, c.ChunkMinChars, c.ChunkMaxChars)
	}
	if c.MinSectionChars < 0 {
		return fmt.Errorf("%w: min_section_chars=%d", ErrInvalidChunkBounds, c.MinSectionChars)
	}

	if c.SearchTopK < 1 || c.CandidateCap < 1 || c.FinalResults < 1 {
		return fmt.Errorf("%w: top_k=%d cap=%d final=%d",
			ErrInvalidRetrievalLimits, c.SearchTopK, c.CandidateCap, c.FinalResults)
	}
	if c.FinalResults > c.CandidateCap || c.CandidateCap > c.SearchTopK {
		return fmt.Errorf("%w: expected final <= cap <= top_k, got %d/%d/%d",
			ErrInvalidRetrievalLimits, c.FinalResults, c.CandidateCap, c.SearchTopK)
	}

	if !strings.HasPrefix(c.WikiAPIURL, "http://") && !strings.HasPrefix(c.WikiAPIURL, "https://") {
		return fmt.Errorf("%w: %q", ErrInvalidWikiURL, c.WikiAPIURL)
	}

	if c.ScrapeInterval <= 0 || c.UpdateCheckInterval <= 0 {
		return fmt.Errorf("%w: scrape=%s update_check=%s",
			ErrInvalidInterval, c.ScrapeInterval, c.UpdateCheckInterval)
	}

	return nil
}

// SlogLevel maps the configured log level string to a slog.Level.
// Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

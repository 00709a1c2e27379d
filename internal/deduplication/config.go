package deduplication

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds configuration for duplicate detection
type Config struct {
	// SimilarityThreshold is the minimum keyword overlap (0.0-1.0) for the
	// similarity rule. Default: 0.5
	SimilarityThreshold float64

	// SemanticEnabled turns on the embedding rule. Default: false
	SemanticEnabled bool

	// SemanticThreshold is the minimum cosine similarity for the embedding
	// rule. Default: 0.9
	SemanticThreshold float64

	// MaxCandidates caps how many existing bugs are scanned by the similarity
	// and semantic rules. The most recent bugs are kept and scanned oldest
	// first. Default: 1000
	MaxCandidates int
}

// DefaultConfig returns the default deduplication configuration
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.5,
		SemanticEnabled:     false,
		SemanticThreshold:   0.9,
		MaxCandidates:       1000,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.SimilarityThreshold <= 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("similarity_threshold must be in (0.0, 1.0] (got %.2f)", c.SimilarityThreshold)
	}
	if c.SemanticThreshold <= 0.0 || c.SemanticThreshold > 1.0 {
		return fmt.Errorf("semantic_threshold must be in (0.0, 1.0] (got %.2f)", c.SemanticThreshold)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive (got %d)", c.MaxCandidates)
	}
	if c.MaxCandidates > 100000 {
		return fmt.Errorf("max_candidates too large (got %d, max 100000)", c.MaxCandidates)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{Similarity: %.2f, Semantic: %t@%.2f, MaxCandidates: %d}",
		c.SimilarityThreshold, c.SemanticEnabled, c.SemanticThreshold, c.MaxCandidates)
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - BT_DEDUP_SIMILARITY_THRESHOLD: keyword overlap threshold (default: 0.5)
//   - BT_DEDUP_SEMANTIC_ENABLED: enable the embedding rule (default: false)
//   - BT_DEDUP_SEMANTIC_THRESHOLD: cosine similarity threshold (default: 0.9)
//   - BT_DEDUP_MAX_CANDIDATES: bugs scanned per report (default: 1000)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvFloat("BT_DEDUP_SIMILARITY_THRESHOLD", &cfg.SimilarityThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("BT_DEDUP_SEMANTIC_ENABLED", &cfg.SemanticEnabled); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("BT_DEDUP_SEMANTIC_THRESHOLD", &cfg.SemanticThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("BT_DEDUP_MAX_CANDIDATES", &cfg.MaxCandidates); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	apperrors "resonance/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Matching
	CatalogPath       string  // Path to the value dimension catalog (TOML)
	RankHeapThreshold int     // Pool size above which top-K selection switches to a bounded heap
	RankScanBudget    int     // Max candidates scored per ranking pass; beyond this results are partial
	RankConcurrency   int     // Parallel scoring workers per ranking pass
	SharedThreshold   float64 // Max position gap for a dimension to count as shared
	TensionThreshold  float64 // Min position gap for a dimension to count as tension
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		Neo4jURI:          getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:         getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:     getEnv("NEO4J_PASSWORD", "password"),
		CatalogPath:       getEnv("CATALOG_PATH", "catalog.toml"),
		RankHeapThreshold: getEnvInt("RANK_HEAP_THRESHOLD", 256),
		RankScanBudget:    getEnvInt("RANK_SCAN_BUDGET", 10000),
		RankConcurrency:   getEnvInt("RANK_CONCURRENCY", 8),
		SharedThreshold:   getEnvFloat("SHARED_THRESHOLD", 0.25),
		TensionThreshold:  getEnvFloat("TENSION_THRESHOLD", 1.25),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigValidationFailed("NEO4J_URI", "is required")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigValidationFailed("NEO4J_USER", "is required")
	}
	if c.Neo4jPassword == "" {
		return apperrors.NewConfigValidationFailed("NEO4J_PASSWORD", "is required")
	}
	if c.CatalogPath == "" {
		return apperrors.NewConfigValidationFailed("CATALOG_PATH", "is required")
	}
	if c.RankScanBudget < 1 {
		return apperrors.NewConfigValidationFailed("RANK_SCAN_BUDGET", "must be positive")
	}
	if c.RankConcurrency < 1 {
		return apperrors.NewConfigValidationFailed("RANK_CONCURRENCY", "must be positive")
	}
	if c.SharedThreshold < 0 || c.TensionThreshold <= c.SharedThreshold {
		return apperrors.NewConfigValidationFailed("TENSION_THRESHOLD", "must be greater than SHARED_THRESHOLD")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

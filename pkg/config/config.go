// Package config handles kgraph configuration.
//
// Configuration loads in three layers, each overriding the one before:
// built-in defaults, an optional YAML file, then KGRAPH_-prefixed environment
// variables. The environment layer exists so deployments can tweak a single
// knob without shipping a config file.
//
// Example Usage:
//
//	cfg, err := config.Load("kgraph.yaml")
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	persist, err := storage.NewBadgerStoreWithOptions(cfg.Storage.BadgerOptions())
//
// Environment Variables:
//   - KGRAPH_DATA_DIR="./data"
//   - KGRAPH_IN_MEMORY=true
//   - KGRAPH_SYNC_WRITES=false
//   - KGRAPH_QUERY_DEFAULT_LIMIT=100
//   - KGRAPH_QUERY_MAX_PATH_DEPTH=50
//   - KGRAPH_QUERY_TIMEOUT=30s
//   - KGRAPH_QUERY_FUZZY=true
//   - KGRAPH_INGEST_MAX_BATCH=500
//   - KGRAPH_LOG_LEVEL="info"
//   - KGRAPH_LOG_FORMAT="json" or "text"
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kgraphdb/kgraph/pkg/storage"
)

// Config holds all kgraph configuration.
//
// Organized into logical sections:
//   - Storage: persistence layer settings
//   - Query: engine limits and deadlines
//   - Ingest: batch bounds
//   - Logging: log level and format
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Query   QueryConfig   `yaml:"query"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// DataDir is the directory for BadgerDB data files.
	DataDir string `yaml:"dataDir"`
	// InMemory keeps all data in RAM; DataDir is ignored.
	InMemory bool `yaml:"inMemory"`
	// SyncWrites forces fsync after each write.
	SyncWrites bool `yaml:"syncWrites"`
}

// BadgerOptions converts the section into storage options.
func (c StorageConfig) BadgerOptions() storage.BadgerOptions {
	return storage.BadgerOptions{
		DataDir:    c.DataDir,
		InMemory:   c.InMemory,
		SyncWrites: c.SyncWrites,
	}
}

// QueryConfig holds query engine settings.
type QueryConfig struct {
	// DefaultLimit applies when a query specifies no limit. Zero disables
	// the implicit cap.
	DefaultLimit int `yaml:"defaultLimit"`
	// MaxPathDepth caps shortest-path searches.
	MaxPathDepth int `yaml:"maxPathDepth"`
	// Timeout bounds long-running operations (path, similarity, analysis).
	Timeout time.Duration `yaml:"timeout"`
	// FuzzySearch enables edit-distance expansion in full-text search.
	FuzzySearch bool `yaml:"fuzzySearch"`
}

// IngestConfig holds updater settings.
type IngestConfig struct {
	// MaxBatchSize rejects oversized batches so a single failure never forces
	// re-doing excessive work. Zero disables the bound.
	MaxBatchSize int `yaml:"maxBatchSize"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Query: QueryConfig{
			DefaultLimit: 100,
			MaxPathDepth: 50,
			Timeout:      30 * time.Second,
			FuzzySearch:  true,
		},
		Ingest: IngestConfig{
			MaxBatchSize: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and environment
// overrides, then validates it. An empty path skips the file layer; a named
// but missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.DataDir = getEnv("KGRAPH_DATA_DIR", c.Storage.DataDir)
	c.Storage.InMemory = getEnvBool("KGRAPH_IN_MEMORY", c.Storage.InMemory)
	c.Storage.SyncWrites = getEnvBool("KGRAPH_SYNC_WRITES", c.Storage.SyncWrites)

	c.Query.DefaultLimit = getEnvInt("KGRAPH_QUERY_DEFAULT_LIMIT", c.Query.DefaultLimit)
	c.Query.MaxPathDepth = getEnvInt("KGRAPH_QUERY_MAX_PATH_DEPTH", c.Query.MaxPathDepth)
	c.Query.Timeout = getEnvDuration("KGRAPH_QUERY_TIMEOUT", c.Query.Timeout)
	c.Query.FuzzySearch = getEnvBool("KGRAPH_QUERY_FUZZY", c.Query.FuzzySearch)

	c.Ingest.MaxBatchSize = getEnvInt("KGRAPH_INGEST_MAX_BATCH", c.Ingest.MaxBatchSize)

	c.Logging.Level = getEnv("KGRAPH_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("KGRAPH_LOG_FORMAT", c.Logging.Format)
}

// Validate checks the configuration for logical errors. Call after Load (Load
// already does) or after mutating a Config by hand.
func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("storage: dataDir is required unless inMemory is set")
	}
	if c.Query.DefaultLimit < 0 {
		return fmt.Errorf("query: negative defaultLimit %d", c.Query.DefaultLimit)
	}
	if c.Query.MaxPathDepth <= 0 {
		return fmt.Errorf("query: maxPathDepth must be positive, got %d", c.Query.MaxPathDepth)
	}
	if c.Query.Timeout < 0 {
		return fmt.Errorf("query: negative timeout %s", c.Query.Timeout)
	}
	if c.Ingest.MaxBatchSize < 0 {
		return fmt.Errorf("ingest: negative maxBatchSize %d", c.Ingest.MaxBatchSize)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}

// String returns a representation safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DataDir: %s, InMemory: %v, QueryTimeout: %s, MaxBatch: %d}",
		c.Storage.DataDir, c.Storage.InMemory, c.Query.Timeout, c.Ingest.MaxBatchSize)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

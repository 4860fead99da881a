package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.False(t, cfg.Storage.InMemory)
	assert.Equal(t, 100, cfg.Query.DefaultLimit)
	assert.Equal(t, 50, cfg.Query.MaxPathDepth)
	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.True(t, cfg.Query.FuzzySearch)
	assert.Equal(t, 500, cfg.Ingest.MaxBatchSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
storage:
  inMemory: true
query:
  defaultLimit: 25
  timeout: 5s
logging:
  format: text
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.True(t, cfg.Storage.InMemory)
		assert.Equal(t, 25, cfg.Query.DefaultLimit)
		assert.Equal(t, 5*time.Second, cfg.Query.Timeout)
		assert.Equal(t, "text", cfg.Logging.Format)

		// Untouched keys keep their defaults.
		assert.Equal(t, 50, cfg.Query.MaxPathDepth)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfig(t, "query:\n  defaultLimit: 25\n")
		t.Setenv("KGRAPH_QUERY_DEFAULT_LIMIT", "7")
		t.Setenv("KGRAPH_QUERY_TIMEOUT", "90s")
		t.Setenv("KGRAPH_IN_MEMORY", "true")
		t.Setenv("KGRAPH_LOG_LEVEL", "debug")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 7, cfg.Query.DefaultLimit)
		assert.Equal(t, 90*time.Second, cfg.Query.Timeout)
		assert.True(t, cfg.Storage.InMemory)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("unparsable env value falls back", func(t *testing.T) {
		t.Setenv("KGRAPH_QUERY_DEFAULT_LIMIT", "lots")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Query.DefaultLimit)
	})

	t.Run("named but missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := writeConfig(t, "storage: [not a mapping")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid merged config is an error", func(t *testing.T) {
		t.Setenv("KGRAPH_LOG_LEVEL", "loud")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no data dir without inMemory": func(c *Config) { c.Storage.DataDir = "" },
		"negative default limit":       func(c *Config) { c.Query.DefaultLimit = -1 },
		"zero max path depth":          func(c *Config) { c.Query.MaxPathDepth = 0 },
		"negative timeout":             func(c *Config) { c.Query.Timeout = -time.Second },
		"negative max batch":           func(c *Config) { c.Ingest.MaxBatchSize = -1 },
		"unknown log level":            func(c *Config) { c.Logging.Level = "verbose" },
		"unknown log format":           func(c *Config) { c.Logging.Format = "xml" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("inMemory without data dir is fine", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.DataDir = ""
		cfg.Storage.InMemory = true
		assert.NoError(t, cfg.Validate())
	})
}

func TestBadgerOptions(t *testing.T) {
	cfg := Default()
	cfg.Storage.InMemory = true
	cfg.Storage.SyncWrites = true

	opts := cfg.Storage.BadgerOptions()
	assert.Equal(t, cfg.Storage.DataDir, opts.DataDir)
	assert.True(t, opts.InMemory)
	assert.True(t, opts.SyncWrites)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  driver: postgres
  postgres:
    dsn: postgres://localhost/paperlens
retrieval:
  default_top_k: 3
  max_top_k: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/paperlens", cfg.DatabaseDSN())
	assert.Equal(t, 3, cfg.Retrieval.DefaultTopK)
	// Unset fields keep defaults.
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DATABASE_URL", "sqlite:/tmp/override.db")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("VISION_MODEL", "test/vision-model")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/override.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	// The OpenRouter key covers embeddings when no dedicated key is set.
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "test/vision-model", cfg.LLM.VisionModel)
	assert.Equal(t, "error", cfg.Observability.LogLevel)
}

func TestEnvPostgresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db.internal/paperlens")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://db.internal/paperlens", cfg.Database.Postgres.DSN)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"bad cache", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"bad dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"topk above max", func(c *Config) { c.Retrieval.DefaultTopK = 50 }},
		{"zero attempts", func(c *Config) { c.Ingestion.BatchAttempts = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/abs/file.db", ResolveRelativePath("/etc/paperlens/config.yaml", "/abs/file.db"))
	assert.Equal(t, "/etc/paperlens/data.db", ResolveRelativePath("/etc/paperlens/config.yaml", "data.db"))
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 0.6, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.4, cfg.Search.VectorWeight)
	assert.Equal(t, 5, cfg.Search.Overfetch)
	assert.Equal(t, "sqlite", cfg.Storage.LexicalBackend)
	assert.Equal(t, 2000, cfg.Ingest.ChunkMaxChars)
	assert.Equal(t, 100, cfg.Ingest.ChunkMinChars)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestNewConfig_ValidatesClean(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestLoad_NoConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Search.LexicalWeight)
}

func TestLoad_ProjectConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	content := `
version: 1
sources:
  notes: /data/notes
  logs: /data/logs
search:
  lexical_weight: 0.7
  vector_weight: 0.3
embeddings:
  model: text-embedding-3-small
  dimensions: 1536
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memdex.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/data/notes", cfg.Sources.Notes)
	assert.Equal(t, "/data/logs", cfg.Sources.Logs)
	assert.Equal(t, 0.7, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.3, cfg.Search.VectorWeight)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 1536, cfg.Embeddings.Dimensions)
	// Unset fields keep defaults
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 2000, cfg.Ingest.ChunkMaxChars)
}

func TestLoad_YmlFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	content := "search:\n  max_results: 25\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memdex.yml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Search.MaxResults)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("MEMDEX_LEXICAL_WEIGHT", "0.5")
	t.Setenv("MEMDEX_VECTOR_WEIGHT", "0.5")
	t.Setenv("MEMDEX_DATA_DIR", "/tmp/memdex-test")
	t.Setenv("MEMDEX_EMBEDDINGS_MODEL", "env-model")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.5, cfg.Search.VectorWeight)
	assert.Equal(t, "/tmp/memdex-test", cfg.Storage.DataDir)
	assert.Equal(t, "env-model", cfg.Embeddings.Model)
}

func TestLoad_InvalidWeightSum(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	content := "search:\n  lexical_weight: 0.8\n  vector_weight: 0.4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memdex.yaml"), []byte(content), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memdex.yaml"), []byte("search: ["), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative weight",
			mutate:  func(c *Config) { c.Search.LexicalWeight = -0.1; c.Search.VectorWeight = 1.1 },
			wantErr: "lexical_weight",
		},
		{
			name:    "zero overfetch",
			mutate:  func(c *Config) { c.Search.Overfetch = 0 },
			wantErr: "overfetch",
		},
		{
			name:    "min chars above max",
			mutate:  func(c *Config) { c.Ingest.ChunkMinChars = 3000 },
			wantErr: "chunk_min_chars",
		},
		{
			name:    "bad provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "cohere" },
			wantErr: "embeddings.provider",
		},
		{
			name:    "bad lexical backend",
			mutate:  func(c *Config) { c.Storage.LexicalBackend = "lucene" },
			wantErr: "lexical_backend",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: "log_level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUserConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")
	t.Setenv("XDG_CONFIG_HOME", xdg)

	userDir := filepath.Join(xdg, "memdex")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	userCfg := "search:\n  max_results: 50\n  snippet_length: 100\n"
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(userCfg), 0o644))

	projCfg := "search:\n  max_results: 7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memdex.yaml"), []byte(projCfg), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	// Project config overrides user config; user config overrides defaults
	assert.Equal(t, 7, cfg.Search.MaxResults)
	assert.Equal(t, 100, cfg.Search.SnippetLength)
}

func TestSourceDirs(t *testing.T) {
	cfg := NewConfig()
	cfg.Sources.Notes = "/data/notes"
	cfg.Sources.Memory = "/data/memory"

	dirs := cfg.SourceDirs()
	assert.Len(t, dirs, 2)
	assert.Equal(t, "/data/notes", dirs["notes"])
	assert.Equal(t, "/data/memory", dirs["memory"])
}

func TestDerivedPaths(t *testing.T) {
	cfg := NewConfig()
	cfg.Storage.DataDir = "/var/lib/memdex"

	assert.Equal(t, "/var/lib/memdex/memdex.db", cfg.DatabasePath())
	assert.Equal(t, "/var/lib/memdex/vectors.hnsw", cfg.VectorIndexPath())
	assert.Equal(t, "/var/lib/memdex/lexical.bleve", cfg.BleveIndexPath())
	assert.Equal(t, "/var/lib/memdex/ingest.lock", cfg.LockPath())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.Sources.Notes = "/data/notes"
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, "/data/notes", loaded.Sources.Notes)
}

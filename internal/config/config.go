package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete memdex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Sources    SourcesConfig    `yaml:"sources" json:"sources"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// SourcesConfig maps source kinds to the directories scanned for
// markdown documents. Empty entries disable the source.
type SourcesConfig struct {
	Notes   string `yaml:"notes" json:"notes"`
	Summary string `yaml:"summary" json:"summary"`
	Memory  string `yaml:"memory" json:"memory"`
	Logs    string `yaml:"logs" json:"logs"`
}

// StorageConfig configures where indexes and metadata live.
type StorageConfig struct {
	// DataDir is the root directory for all index files.
	// Defaults to ~/.memdex.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LexicalBackend selects the full-text index backend.
	// Options: "sqlite" (default, shares the metadata database) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// SQLiteCacheMB is the SQLite page cache size in MB (default: 64).
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "openai" (any OpenAI-compatible
	// endpoint) or "static" (deterministic hash vectors, offline).
	// Empty auto-detects: openai when Endpoint is reachable, else static.
	Provider string `yaml:"provider" json:"provider"`

	// Endpoint is the base URL of the embeddings API.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`

	// BatchSize is the maximum number of chunks per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// MaxBatchTokens caps the estimated token total of a single request.
	MaxBatchTokens int `yaml:"max_batch_tokens" json:"max_batch_tokens"`

	// RequestsPerSecond rate-limits calls to the provider (0 = unlimited).
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize is the number of embeddings kept in the in-memory LRU.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures hybrid search parameters.
// Weights are configurable via:
//  1. User config (~/.config/memdex/config.yaml) - personal defaults
//  2. Project config (.memdex.yaml) - per-corpus tuning
//  3. Env vars (MEMDEX_LEXICAL_WEIGHT, MEMDEX_VECTOR_WEIGHT) - highest priority
type SearchConfig struct {
	// LexicalWeight is the weight for full-text matching (0.0-1.0).
	// Must sum to 1.0 with VectorWeight.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// VectorWeight is the weight for semantic similarity (0.0-1.0).
	// Must sum to 1.0 with LexicalWeight.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// Overfetch multiplies the result limit when querying each index,
	// so fusion has deeper candidate lists to merge.
	Overfetch int `yaml:"overfetch" json:"overfetch"`

	// MaxResults is the default result limit.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// SnippetLength is the maximum snippet length in characters.
	SnippetLength int `yaml:"snippet_length" json:"snippet_length"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// ChunkMaxChars is the maximum chunk size in characters.
	ChunkMaxChars int `yaml:"chunk_max_chars" json:"chunk_max_chars"`

	// ChunkMinChars merges smaller chunks forward into their successor.
	ChunkMinChars int `yaml:"chunk_min_chars" json:"chunk_min_chars"`

	// Workers is the number of concurrent embedding workers.
	Workers int `yaml:"workers" json:"workers"`

	// BackupsToKeep is how many index backups to retain before full rebuilds.
	BackupsToKeep int `yaml:"backups_to_keep" json:"backups_to_keep"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Sources: SourcesConfig{},
		Storage: StorageConfig{
			DataDir:        defaultDataDir(),
			LexicalBackend: "sqlite",
			SQLiteCacheMB:  64,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "",
			Endpoint:          "http://localhost:11434/v1",
			APIKeyEnv:         "MEMDEX_API_KEY",
			Model:             "nomic-embed-text",
			Dimensions:        768,
			BatchSize:         32,
			MaxBatchTokens:    8000,
			RequestsPerSecond: 4,
			Timeout:           30 * time.Second,
			CacheSize:         1000,
		},
		Search: SearchConfig{
			LexicalWeight: 0.6,
			VectorWeight:  0.4,
			Overfetch:     5,
			MaxResults:    10,
			SnippetLength: 240,
		},
		Ingest: IngestConfig{
			ChunkMaxChars: 2000,
			ChunkMinChars: 100,
			Workers:       runtime.NumCPU(),
			BackupsToKeep: 3,
		},
		LogLevel: "info",
	}
}

// defaultDataDir returns the default data directory (~/.memdex).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".memdex")
	}
	return filepath.Join(home, ".memdex")
}

// DatabasePath returns the SQLite database path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "memdex.db")
}

// VectorIndexPath returns the vector index file path.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Storage.DataDir, "vectors.hnsw")
}

// BleveIndexPath returns the bleve index directory path.
func (c *Config) BleveIndexPath() string {
	return filepath.Join(c.Storage.DataDir, "lexical.bleve")
}

// LexicalBasePath returns the lexical index path without a backend
// extension; the store factory appends .db or .bleve.
func (c *Config) LexicalBasePath() string {
	return filepath.Join(c.Storage.DataDir, "lexical")
}

// LockPath returns the ingestion run-lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Storage.DataDir, "ingest.lock")
}

// SourceDirs returns the configured source kind -> directory map,
// omitting empty entries.
func (c *Config) SourceDirs() map[string]string {
	dirs := make(map[string]string, 4)
	for kind, dir := range map[string]string{
		"notes":   c.Sources.Notes,
		"summary": c.Sources.Summary,
		"memory":  c.Sources.Memory,
		"logs":    c.Sources.Logs,
	} {
		if dir != "" {
			dirs[kind] = dir
		}
	}
	return dirs
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/memdex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/memdex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memdex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "memdex", "config.yaml")
	}
	return filepath.Join(home, ".config", "memdex", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/memdex/config.yaml)
//  3. Project config (.memdex.yaml in dir)
//  4. Environment variables (MEMDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .memdex.yaml or .memdex.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".memdex.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".memdex.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Sources
	if other.Sources.Notes != "" {
		c.Sources.Notes = other.Sources.Notes
	}
	if other.Sources.Summary != "" {
		c.Sources.Summary = other.Sources.Summary
	}
	if other.Sources.Memory != "" {
		c.Sources.Memory = other.Sources.Memory
	}
	if other.Sources.Logs != "" {
		c.Sources.Logs = other.Sources.Logs
	}

	// Storage
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.LexicalBackend != "" {
		c.Storage.LexicalBackend = other.Storage.LexicalBackend
	}
	if other.Storage.SQLiteCacheMB != 0 {
		c.Storage.SQLiteCacheMB = other.Storage.SQLiteCacheMB
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.APIKeyEnv != "" {
		c.Embeddings.APIKeyEnv = other.Embeddings.APIKeyEnv
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.MaxBatchTokens != 0 {
		c.Embeddings.MaxBatchTokens = other.Embeddings.MaxBatchTokens
	}
	if other.Embeddings.RequestsPerSecond != 0 {
		c.Embeddings.RequestsPerSecond = other.Embeddings.RequestsPerSecond
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// Search weights
	// Note: 0 is not a practical value for weights, so we only merge non-zero values
	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.Overfetch != 0 {
		c.Search.Overfetch = other.Search.Overfetch
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.SnippetLength != 0 {
		c.Search.SnippetLength = other.Search.SnippetLength
	}

	// Ingest
	if other.Ingest.ChunkMaxChars != 0 {
		c.Ingest.ChunkMaxChars = other.Ingest.ChunkMaxChars
	}
	if other.Ingest.ChunkMinChars != 0 {
		c.Ingest.ChunkMinChars = other.Ingest.ChunkMinChars
	}
	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}
	if other.Ingest.BackupsToKeep != 0 {
		c.Ingest.BackupsToKeep = other.Ingest.BackupsToKeep
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnvOverrides applies MEMDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Search weights (support explicit zero values via env vars)
	if v := os.Getenv("MEMDEX_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("MEMDEX_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}

	if v := os.Getenv("MEMDEX_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("MEMDEX_LEXICAL_BACKEND"); v != "" {
		c.Storage.LexicalBackend = v
	}

	if v := os.Getenv("MEMDEX_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MEMDEX_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("MEMDEX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MEMDEX_EMBEDDINGS_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}

	if v := os.Getenv("MEMDEX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}

	sum := c.Search.LexicalWeight + c.Search.VectorWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("lexical_weight + vector_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.Overfetch < 1 {
		return fmt.Errorf("overfetch must be at least 1, got %d", c.Search.Overfetch)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	if c.Ingest.ChunkMaxChars <= 0 {
		return fmt.Errorf("chunk_max_chars must be positive, got %d", c.Ingest.ChunkMaxChars)
	}
	if c.Ingest.ChunkMinChars < 0 || c.Ingest.ChunkMinChars >= c.Ingest.ChunkMaxChars {
		return fmt.Errorf("chunk_min_chars must be in [0, chunk_max_chars), got %d", c.Ingest.ChunkMinChars)
	}

	if c.Embeddings.Provider != "" { // Empty string triggers auto-detection
		validProviders := map[string]bool{"openai": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'openai', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Storage.LexicalBackend)] {
		return fmt.Errorf("storage.lexical_backend must be 'sqlite' or 'bleve', got %s", c.Storage.LexicalBackend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

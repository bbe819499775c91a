// Package config provides configuration loading and structs for the Kaiwa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Chat      ChatConfig      `yaml:"chat"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the path for the SQLite database and the directory
// for on-disk vector index snapshots.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexDir     string `yaml:"index_dir"`
}

// ResolvedIndexDir returns the index snapshot directory, defaulting to an
// "indexes" directory next to the database file when unset.
func (c StorageConfig) ResolvedIndexDir() string {
	if c.IndexDir != "" {
		return c.IndexDir
	}
	return filepath.Join(filepath.Dir(c.DatabasePath), "indexes")
}

// EmbeddingConfig holds settings for the hosted embeddings collaborator.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	CacheTTLSecs   int    `yaml:"cache_ttl_seconds"`
}

// LLMConfig holds settings for the chat completion collaborator.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
}

// ChatConfig holds chunking and retrieval settings.
type ChatConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	Separator       string `yaml:"separator"`
	TopK            int    `yaml:"top_k"`
	MaxContextChars int    `yaml:"max_context_chars"`
	// FallbackOnly makes every ask use the deterministic responder,
	// bypassing the LLM collaborator entirely.
	FallbackOnly bool `yaml:"fallback_only"`
}

// WatchConfig holds inbox directory auto-ingest settings.
// When InboxDir is empty the watcher is disabled.
type WatchConfig struct {
	InboxDir   string   `yaml:"inbox_dir"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Storage.IndexDir != "" {
		cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	}
	if cfg.Watch.InboxDir != "" {
		cfg.Watch.InboxDir = expandPath(cfg.Watch.InboxDir, configDir)
	}

	return &cfg, nil
}

// Default returns a config with every default applied, for running without
// a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

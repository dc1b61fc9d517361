package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/log"
)

// Config holds server and engine configuration
type Config struct {
	// DataDir is the root directory holding every store's WAL, segments,
	// and catalogs.
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the HTTP API bind address.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel log.Level `yaml:"log_level"`

	// LogJSON switches console output to JSON.
	LogJSON bool `yaml:"log_json"`

	// EmbeddingDim sizes the built-in hash embedder when no external
	// provider is injected.
	EmbeddingDim int `yaml:"embedding_dim"`

	// WAL tuning. Zero values use the engine defaults.
	SealRecords int   `yaml:"seal_records"`
	SealBytes   int64 `yaml:"seal_bytes"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:      "./data",
		ListenAddr:   ":8440",
		LogLevel:     log.InfoLevel,
		EmbeddingDim: 256,
	}
}

// Load reads a YAML config file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding_dim must be positive, got %d", cfg.EmbeddingDim)
	}
	return cfg, nil
}

// applyEnv maps environment variables over file values. BURROW_DATA_DIR
// wins over the legacy DATA_DIR name.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("BURROW_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("BURROW_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
}

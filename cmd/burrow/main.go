package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/embedding"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/registry"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagDataDir  string
	flagConfig   string
	flagServer   string
	flagJSON     bool
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - versioned, forkable memory store",
	Long: `Burrow is a persistent memory store for long-lived assistant context:
structured memories with text and vector retrieval, typed relationships,
and a versioned, content-addressed, forkable storage engine with
point-in-time recovery and cryptographic integrity.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (default ./data or $BURROW_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Address of a running server (e.g. http://localhost:8440); omit for embedded mode")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// loadConfig resolves configuration from file, environment, and flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	return cfg, nil
}

// openEngine initializes logging, the embedding provider, and the
// registry for embedded commands.
func openEngine(cfg *config.Config, level log.Level) (*registry.Registry, *events.Broker, error) {
	log.Init(log.Config{Level: level, JSONOutput: cfg.LogJSON})
	if embedding.Dim() == 0 {
		if err := embedding.Configure(embedding.NewHashEmbedder(cfg.EmbeddingDim), cfg.EmbeddingDim); err != nil {
			return nil, nil, err
		}
	}
	broker := events.NewBroker()
	reg, err := registry.Open(registry.Options{
		DataDir:     cfg.DataDir,
		Broker:      broker,
		SealRecords: cfg.SealRecords,
		SealBytes:   cfg.SealBytes,
	})
	if err != nil {
		broker.Close()
		return nil, nil, err
	}
	return reg, broker, nil
}

// remote returns the REST client when --server was given.
func remote() *client.Client {
	if flagServer == "" {
		return nil
	}
	return client.NewClient(flagServer)
}

// output prints v as JSON when --json is set and returns true.
func output(v interface{}) bool {
	if !flagJSON {
		return false
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
	return true
}

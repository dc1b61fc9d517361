package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Start the Burrow engine and serve the REST API.

Examples:
  # Serve ./data on the default port
  burrow serve

  # Custom data directory and listen address
  burrow serve --data-dir /var/lib/burrow --listen :9000`,
	RunE: runServe,
}

var flagListen string

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "HTTP listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.ListenAddr = flagListen
	}

	metrics.Register()
	reg, broker, err := openEngine(cfg, log.Level(flagLogLevel))
	if err != nil {
		return err
	}
	defer broker.Close()
	defer reg.Close()

	stopCompactor := make(chan struct{})
	reg.StartCompactor(10*time.Minute, stopCompactor)
	defer close(stopCompactor)

	server := api.NewServer(reg, cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API used by the tester and developer web clients.

The server listens on server.port (default 5000, or $PORT) and stops
gracefully on SIGINT/SIGTERM.

Examples:
  # Serve with defaults (SQLite under .bugtracker/)
  bugtracker serve

  # Serve on another port without AI
  PORT=8080 BT_AI_PROVIDER=none bugtracker serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, store, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := os.MkdirAll(cfg.Server.UploadsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create uploads dir: %w", err)
		}

		apiCfg := api.Config{
			Tracker:       a.tracker,
			Developers:    a.developers,
			Analyzer:      a.analyzer,
			Store:         store,
			Metrics:       a.metrics,
			Logger:        logger,
			UploadsDir:    cfg.Server.UploadsDir,
			MaxBodyBytes:  cfg.Server.MaxBodyBytes,
			AllowedOrigin: cfg.Server.AllowedOrigin,
		}
		if a.aiClient != nil {
			apiCfg.AI = a.aiClient
		}
		srv, err := api.New(apiCfg)
		if err != nil {
			return err
		}

		logger.Info("starting bugtracker",
			zap.String("addr", cfg.Addr()),
			zap.String("storage", cfg.Storage.Backend),
			zap.String("ai", cfg.AI.Provider))
		return srv.Run(ctx, cfg.Addr(), cfg.Server.ShutdownTimeout)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Override server.port")
	rootCmd.AddCommand(serveCmd)
}

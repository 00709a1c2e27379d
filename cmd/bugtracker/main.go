// Command bugtracker runs the bug tracking API and offers a small admin CLI
// over the same storage.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/steveyegge/bugtracker/internal/config"
	"github.com/steveyegge/bugtracker/internal/storage"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger = zap.NewNop()
	store  storage.Storage
)

var rootCmd = &cobra.Command{
	Use:   "bugtracker",
	Short: "Bug tracker with AI enrichment and duplicate detection",
	Long: `bugtracker collects bug reports from testers, enriches them with an AI
summary, tags, category and severity, and folds repeat reports into the
original bug.

Run "bugtracker serve" for the HTTP API. The remaining commands operate on
the same database directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err = newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		// Tests install their own store
		if store == nil {
			store, err = storage.NewStorage(cmd.Context(), &storage.Config{
				Backend: cfg.Storage.Backend,
				Path:    cfg.Storage.Path,
				DSN:     cfg.Storage.DSN,
			})
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close storage", zap.Error(err))
			}
		}
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func newLogger(debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

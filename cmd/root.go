// Package cmd holds the cefrgen command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cefr-dataset/internal/app"
	"github.com/JakeFAU/cefr-dataset/internal/config"
	"github.com/JakeFAU/cefr-dataset/internal/coordinator"
	"github.com/JakeFAU/cefr-dataset/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Runner is what the root command drives. Tests swap in a fake.
type Runner interface {
	Run(ctx context.Context) (coordinator.Summary, error)
	Close(ctx context.Context) error
}

// newRunner is the application factory. It's a variable so tests can replace it.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.Build(ctx, cfg, logger)
}

// newLogger is swapped in tests to capture output.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Name:        "cefrgen",
	})
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "cefrgen",
		Short: "Build a CEFR-annotated vocabulary dataset.",
		Long: `cefrgen collects words from the configured sources, assigns each a CEFR
level, a definition, and synonyms, and appends the results to a CSV file.
Runs are checkpointed after every batch and resume where they stopped.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config failed: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer logger.Sync() //nolint:errcheck
			return run(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON, or TOML)")
	return cmd
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := runner.Close(closeCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	sum, err := runner.Run(ctx)
	switch {
	case errors.Is(err, coordinator.ErrInterrupted):
		logger.Warn("run interrupted; progress saved",
			zap.String("run_id", sum.RunID),
			zap.Int("cursor", sum.Cursor),
			zap.Int("total", sum.Total),
		)
		return nil
	case err != nil:
		return err
	}
	logger.Info("dataset complete",
		zap.String("run_id", sum.RunID),
		zap.String("output", cfg.Output.Path),
		zap.Int("total", sum.Total),
		zap.Int("valid", sum.Valid),
		zap.Int("cache_hits", sum.CacheHits),
		zap.Int("cache_entries", sum.CacheEntries),
		zap.Duration("duration", sum.Duration),
	)
	return nil
}

// Execute runs the root command until completion or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cefrgen: %v\n", err)
		os.Exit(1)
	}
}

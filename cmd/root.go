// Package cmd implements the panelbase command-line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/panelbase/panelbase/internal/app"
	"github.com/panelbase/panelbase/internal/config"
	"github.com/panelbase/panelbase/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "panelbase",
	Short: "panelbase - webcomic explanation knowledge base",
	Long: `panelbase maintains a searchable knowledge base of webcomic
explanations. It ingests explanation pages from the source wiki,
chunks and embeds them into PostgreSQL with pgvector, and answers
natural-language questions by vector search plus LLM re-ranking.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// withApp wraps a command body with the shared lifecycle: load
// config, build the logger, set up the application, and tear it down
// on exit. SIGINT and SIGTERM cancel the command's context.
func withApp(run func(ctx context.Context, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})
		slog.SetDefault(logger)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		a, err := app.Setup(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing application: %w", err)
		}
		defer func() {
			if closeErr := a.Close(); closeErr != nil {
				logger.Warn("shutdown error", "error", closeErr)
			}
		}()

		return run(ctx, a)
	}
}

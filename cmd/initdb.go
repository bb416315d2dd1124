package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panelbase/panelbase/internal/app"
	"github.com/panelbase/panelbase/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema and record embedding settings",
	Long: `Runs schema migrations and records the configured embedding
dimensionality and embedder model. Later invocations refuse to run
against a database whose recorded dimensionality differs from the
configured one.`,
	Args: cobra.NoArgs,
	RunE: withApp(runInit),
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(ctx context.Context, a *app.App) error {
	// Migrations already ran during setup; seed the sync metadata.
	if err := a.Store.SetMeta(ctx, store.MetaSchemaInitialized, "true"); err != nil {
		return fmt.Errorf("recording schema init: %w", err)
	}
	if err := a.Store.SetMeta(ctx, store.MetaEmbeddingDim, fmt.Sprint(a.Config.EmbeddingDim)); err != nil {
		return fmt.Errorf("recording embedding dimension: %w", err)
	}
	if err := a.Store.SetMeta(ctx, store.MetaEmbedderModel, a.Config.EmbedderModel); err != nil {
		return fmt.Errorf("recording embedder model: %w", err)
	}

	n, err := a.Store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting comics: %w", err)
	}

	fmt.Printf("initialized: embedding_dim=%d embedder=%s comics=%d\n",
		a.Config.EmbeddingDim, a.Config.EmbedderModel, n)
	return nil
}

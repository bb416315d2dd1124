package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/panelbase/panelbase/internal/app"
)

var scrapeAllCmd = &cobra.Command{
	Use:   "scrape-all",
	Short: "Ingest every comic missing from the knowledge base",
	Long: `Scans ids 1 through the latest published comic and ingests
every id not yet stored. Already-stored comics are left untouched, so
an interrupted run can simply be re-run.`,
	Args: cobra.NoArgs,
	RunE: withApp(runScrapeAll),
}

var scrapeNewCmd = &cobra.Command{
	Use:   "scrape-new",
	Short: "Ingest comics published since the last run",
	Args:  cobra.NoArgs,
	RunE:  withApp(runScrapeNew),
}

var scrapeOneCmd = &cobra.Command{
	Use:   "scrape-one <id>",
	Short: "Ingest or re-ingest a single comic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid comic id %q", args[0])
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			if err := a.Coordinator.ScrapeOne(ctx, id); err != nil {
				return fmt.Errorf("ingesting comic %d: %w", id, err)
			}
			fmt.Printf("comic %d ingested\n", id)
			return nil
		})(cmd, nil)
	},
}

var checkUpdatesCmd = &cobra.Command{
	Use:   "check-updates",
	Short: "Re-ingest stored comics whose explanation changed upstream",
	Args:  cobra.NoArgs,
	RunE:  withApp(runCheckUpdates),
}

func init() {
	rootCmd.AddCommand(scrapeAllCmd)
	rootCmd.AddCommand(scrapeNewCmd)
	rootCmd.AddCommand(scrapeOneCmd)
	rootCmd.AddCommand(checkUpdatesCmd)
}

func runScrapeAll(ctx context.Context, a *app.App) error {
	res, err := a.Coordinator.ScrapeAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("ingested=%d updated=%d skipped=%d failed=%d\n",
		res.Ingested, res.Updated, res.Skipped, res.Failed)
	return nil
}

func runScrapeNew(ctx context.Context, a *app.App) error {
	n, err := a.Coordinator.ScrapeNew(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d new comics ingested\n", n)
	return nil
}

func runCheckUpdates(ctx context.Context, a *app.App) error {
	n, err := a.Coordinator.CheckUpdates(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d comics updated\n", n)
	return nil
}

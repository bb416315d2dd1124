package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panelbase/panelbase/internal/app"
)

var statsRuns int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE:  withApp(runStats),
}

func init() {
	statsCmd.Flags().IntVar(&statsRuns, "runs", 0, "also list the N most recent ingestion runs")
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context, a *app.App) error {
	st, err := a.Store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	fmt.Printf("comics:       %d\n", st.Comics)
	fmt.Printf("chunks:       %d\n", st.Chunks)
	fmt.Printf("max comic id: %d\n", st.MaxComicID)
	if st.LastRun != nil {
		fmt.Printf("last run:     %s (%s) ingested=%d updated=%d skipped=%d failed=%d\n",
			st.LastRun.FinishedAt.Format("2006-01-02 15:04:05"),
			st.LastRun.Mode,
			st.LastRun.Ingested, st.LastRun.Updated, st.LastRun.Skipped, st.LastRun.Failed)
	} else {
		fmt.Println("last run:     none")
	}

	if statsRuns > 0 {
		runs, err := a.Store.RecentRuns(ctx, statsRuns)
		if err != nil {
			return fmt.Errorf("reading ingest runs: %w", err)
		}
		fmt.Println("recent runs:")
		for _, run := range runs {
			fmt.Printf("  %s (%s) ingested=%d updated=%d skipped=%d failed=%d\n",
				run.FinishedAt.Format("2006-01-02 15:04:05"), run.Mode,
				run.Ingested, run.Updated, run.Skipped, run.Failed)
		}
	}
	return nil
}

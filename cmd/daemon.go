package cmd

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/panelbase/panelbase/internal/app"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run periodic ingestion until interrupted",
	Long: `Runs the incremental scan and the update check on their
configured intervals. A file lock guarantees a single daemon per lock
file; a second instance exits immediately.`,
	Args: cobra.NoArgs,
	RunE: withApp(runDaemon),
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(ctx context.Context, a *app.App) error {
	lock := flock.New(a.Config.LockFilePath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another daemon holds %s", a.Config.LockFilePath())
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			a.Logger.Warn("releasing daemon lock", "error", unlockErr)
		}
	}()

	a.Logger.Info("daemon started",
		"scrape_interval", a.Config.ScrapeInterval,
		"update_check_interval", a.Config.UpdateCheckInterval)

	a.Scheduler().Run(ctx)

	a.Logger.Info("daemon stopped")
	return nil
}

package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler triggers periodic ingestion: an incremental scan on one
// cadence and an update check on another. The two tasks tick
// independently and may overlap; that is safe because the incremental
// scan only adds new ids while the update check only rewrites existing
// ones, and per-comic ingestion is atomic and idempotent.
type Scheduler struct {
	coordinator *Coordinator
	scrapeEvery time.Duration
	checkEvery  time.Duration
	logger      *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(coordinator *Coordinator, scrapeEvery, checkEvery time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		coordinator: coordinator,
		scrapeEvery: scrapeEvery,
		checkEvery:  checkEvery,
		logger:      logger,
	}
}

// Run blocks until ctx is canceled, driving both periodic tasks.
// Query serving is unaffected: the scheduler only touches the store
// through the coordinator's atomic per-comic writes.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.loop(ctx, s.scrapeEvery, "incremental scan", func(ctx context.Context) {
			if n, err := s.coordinator.ScrapeNew(ctx); err != nil {
				s.logger.Warn("scheduled incremental scan failed", "error", err)
			} else if n > 0 {
				s.logger.Info("scheduled incremental scan ingested comics", "count", n)
			}
		})
	}()

	go func() {
		defer wg.Done()
		s.loop(ctx, s.checkEvery, "update check", func(ctx context.Context) {
			if n, err := s.coordinator.CheckUpdates(ctx); err != nil {
				s.logger.Warn("scheduled update check failed", "error", err)
			} else if n > 0 {
				s.logger.Info("scheduled update check rewrote comics", "count", n)
			}
		})
	}()

	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, name string, task func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.logger.Debug("scheduler task started", "task", name, "interval", every)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("scheduler task stopped", "task", name)
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// Package app provides application initialization and dependency injection.
//
// App is the core container that wires configuration, the database
// pool, the Genkit runtime, and the ingestion and retrieval pipelines.
// Setup builds everything in dependency order; Close releases it in
// reverse.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/panelbase/panelbase/internal/config"
	"github.com/panelbase/panelbase/internal/fetch"
	"github.com/panelbase/panelbase/internal/ingest"
	"github.com/panelbase/panelbase/internal/retrieve"
	"github.com/panelbase/panelbase/internal/store"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool
	Store    *store.Store
	Fetcher  *fetch.Fetcher

	// Pipelines
	Coordinator *ingest.Coordinator
	Pipeline    *retrieve.Pipeline

	// Lifecycle management
	cancel      context.CancelFunc
	dbCleanup   func()
	otelCleanup func()
}

// Scheduler creates the periodic ingestion scheduler used by the
// daemon command. Built on demand because one-shot commands never
// need it.
func (a *App) Scheduler() *ingest.Scheduler {
	return ingest.NewScheduler(a.Coordinator, a.Config.ScrapeInterval, a.Config.UpdateCheckInterval, a.Logger)
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/panelbase/panelbase/db"
	"github.com/panelbase/panelbase/internal/chunk"
	"github.com/panelbase/panelbase/internal/config"
	"github.com/panelbase/panelbase/internal/fetch"
	"github.com/panelbase/panelbase/internal/ingest"
	"github.com/panelbase/panelbase/internal/llm"
	"github.com/panelbase/panelbase/internal/retrieve"
	"github.com/panelbase/panelbase/internal/store"
)

// userAgent identifies outbound wiki requests.
const userAgent = "panelbase/1.0 (+https://github.com/panelbase/panelbase)"

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	st, err := store.New(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Store = st

	if err := verifyEmbeddingConfig(ctx, st, cfg, logger); err != nil {
		return nil, err
	}

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	fetcher, err := fetch.New(fetch.Config{
		APIURL:    cfg.WikiAPIURL,
		LatestURL: cfg.LatestURL,
		Timeout:   cfg.FetchTimeout,
		Delay:     cfg.FetchDelay,
		UserAgent: userAgent,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Fetcher = fetcher

	chunker := chunk.New(cfg.ChunkMinChars, cfg.ChunkMaxChars, cfg.MinSectionChars)

	coordinator, err := ingest.New(st, fetcherAdapter{fetcher}, chunker, embedder, ingest.Config{
		Concurrency:  cfg.FetchConcurrency,
		EmbeddingDim: cfg.EmbeddingDim,
		XKCDBaseURL:  cfg.XKCDBaseURL,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Coordinator = coordinator

	completer := llm.NewClient(g, cfg.ModelName, cfg.LLMRatePerMinute, cfg.LLMTimeout, logger)

	pipeline, err := retrieve.NewPipeline(
		retrieve.NewEnhancer(completer, logger),
		retrieve.NewRetriever(st, embedder, cfg.EmbeddingDim, logger),
		retrieve.NewReranker(completer, cfg.FinalResults, logger),
		retrieve.Config{SearchTopK: cfg.SearchTopK, CandidateCap: cfg.CandidateCap},
		logger,
	)
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipeline

	// Set up lifecycle management
	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// fetcherAdapter narrows *fetch.Fetcher to the coordinator's Fetcher
// interface. NewWorker returns a concrete *fetch.Worker, so the method
// set does not match directly.
type fetcherAdapter struct {
	*fetch.Fetcher
}

func (f fetcherAdapter) NewWorker() (ingest.FetchWorker, error) {
	return f.Fetcher.NewWorker()
}

// verifyEmbeddingConfig refuses to start against a database whose
// chunk embeddings were written with a different dimensionality than
// the one configured now. Mixing dimensionalities makes cosine
// distances meaningless, so this is fatal. A missing record means the
// database has not been initialized yet; the init command seeds it.
func verifyEmbeddingConfig(ctx context.Context, st *store.Store, cfg *config.Config, logger *slog.Logger) error {
	dim, err := st.Meta(ctx, store.MetaEmbeddingDim)
	if errors.Is(err, store.ErrMetaNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading stored embedding dimension: %w", err)
	}
	if dim != fmt.Sprint(cfg.EmbeddingDim) {
		return fmt.Errorf("stored embedding dimension %s does not match configured %d; re-run init against a fresh database", dim, cfg.EmbeddingDim)
	}

	model, err := st.Meta(ctx, store.MetaEmbedderModel)
	if err == nil && model != cfg.EmbedderModel {
		logger.Warn("embedder model differs from the one the database was built with",
			"stored", model, "configured", cfg.EmbedderModel)
	}
	return nil
}

// provideOtelShutdown sets up OTLP trace export before Genkit
// initialization so Genkit's TracerProvider is ready. Tracing is
// optional; without an endpoint this is a no-op.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("OTLP tracing enabled", "endpoint", cfg.OTLPEndpoint)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default) and ollama.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider
// plugin. Ollama keys embedders by server address; gemini by model
// name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs
// migrations.
func provideDBPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	cleanup := func() {
		pool.Close()
	}

	return pool, cleanup, nil
}

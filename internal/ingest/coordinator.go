// Package ingest keeps the knowledge base in sync with the source
// wiki.
//
// The [Coordinator] drives fetch, parse, chunk, embed and store for
// three operating modes: a full scan for bootstrap, an incremental
// scan for new ids, and an update check that re-ingests only comics
// whose explanation hash changed. Failures are isolated per id: one
// bad page is logged and skipped, never aborting a scan.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/panelbase/panelbase/internal/chunk"
	"github.com/panelbase/panelbase/internal/fetch"
	"github.com/panelbase/panelbase/internal/parse"
	"github.com/panelbase/panelbase/internal/store"
)

// Store is the persistence surface the coordinator writes through.
type Store interface {
	MaxComicID(ctx context.Context) (int64, error)
	ComicIDs(ctx context.Context) ([]int64, error)
	ComicHash(ctx context.Context, id int64) (string, error)
	ReplaceComic(ctx context.Context, comic *store.Comic, chunks []store.Chunk) error
	RecordRun(ctx context.Context, run store.IngestRun) error
}

// FetchWorker is one self-throttled fetch client.
type FetchWorker interface {
	Fetch(ctx context.Context, id int64) (*fetch.RawPage, error)
}

// Fetcher creates fetch workers and answers upstream queries.
type Fetcher interface {
	NewWorker() (FetchWorker, error)
	LatestID(ctx context.Context) (int64, error)
	PageURL(id int64) string
}

// Config holds coordinator settings.
type Config struct {
	Concurrency  int    // global cap on in-flight fetches
	EmbeddingDim int    // fixed output dimensionality requested from the embedder
	XKCDBaseURL  string // origin page base URL
}

// Result aggregates counts from one scan. Counts are accumulated as
// workers finish, in whatever order they finish.
type Result struct {
	Ingested int32 // comics written for the first time
	Updated  int32 // existing comics rewritten after a hash mismatch
	Skipped  int32 // not-found, unchanged, or unparseable-after-retry ids
	Failed   int32 // ids abandoned on error
}

// Coordinator orchestrates the ingestion pipeline. It holds its
// collaborators explicitly; there are no ambient singletons.
type Coordinator struct {
	store    Store
	fetcher  Fetcher
	chunker  *chunk.Chunker
	embedder ai.Embedder
	cfg      Config
	logger   *slog.Logger
}

// New creates a Coordinator.
func New(st Store, fetcher Fetcher, chunker *chunk.Chunker, embedder ai.Embedder, cfg Config, logger *slog.Logger) (*Coordinator, error) {
	if st == nil || fetcher == nil || chunker == nil || embedder == nil {
		return nil, fmt.Errorf("store, fetcher, chunker and embedder are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    st,
		fetcher:  fetcher,
		chunker:  chunker,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ScrapeAll ingests every id not yet present in the store, up to the
// highest id available upstream. Used for initial bootstrap and for
// backfilling holes left by earlier failures.
func (c *Coordinator) ScrapeAll(ctx context.Context) (Result, error) {
	latest, err := c.fetcher.LatestID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolving latest upstream id: %w", err)
	}

	existing, err := c.store.ComicIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	present := make(map[int64]bool, len(existing))
	for _, id := range existing {
		present[id] = true
	}

	var ids []int64
	for id := int64(1); id <= latest; id++ {
		if !present[id] {
			ids = append(ids, id)
		}
	}

	c.logger.Info("full scan starting", "upstream_latest", latest, "missing", len(ids))
	return c.runScan(ctx, "full", ids, nil)
}

// ScrapeNew ingests ids strictly greater than the store's current
// maximum. Returns the number ingested; zero when nothing new exists,
// which is a defined success.
func (c *Coordinator) ScrapeNew(ctx context.Context) (int, error) {
	maxID, err := c.store.MaxComicID(ctx)
	if err != nil {
		return 0, err
	}
	latest, err := c.fetcher.LatestID(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving latest upstream id: %w", err)
	}

	if latest <= maxID {
		c.logger.Debug("no new comics upstream", "stored_max", maxID, "upstream_latest", latest)
		return 0, nil
	}

	var ids []int64
	for id := maxID + 1; id <= latest; id++ {
		ids = append(ids, id)
	}

	c.logger.Info("incremental scan starting", "stored_max", maxID, "upstream_latest", latest)
	res, err := c.runScan(ctx, "incremental", ids, nil)
	return int(res.Ingested), err
}

// CheckUpdates re-fetches every stored comic and re-ingests only those
// whose explanation hash changed. Returns the number updated. Unchanged
// comics cause zero writes.
func (c *Coordinator) CheckUpdates(ctx context.Context) (int, error) {
	ids, err := c.store.ComicIDs(ctx)
	if err != nil {
		return 0, err
	}

	// Snapshot stored hashes up front so workers need no store reads.
	hashes := make(map[int64]string, len(ids))
	for _, id := range ids {
		h, err := c.store.ComicHash(ctx, id)
		if err != nil {
			return 0, err
		}
		hashes[id] = h
	}

	c.logger.Info("update check starting", "comics", len(ids))
	res, err := c.runScan(ctx, "update-check", ids, hashes)
	return int(res.Updated), err
}

// ScrapeOne ingests a single id unconditionally.
func (c *Coordinator) ScrapeOne(ctx context.Context, id int64) error {
	w, err := c.fetcher.NewWorker()
	if err != nil {
		return err
	}
	outcome, err := c.ingestOne(ctx, w, id, nil)
	if err != nil {
		return err
	}
	if outcome == outcomeSkipped {
		return fmt.Errorf("comic %d: %w", id, fetch.ErrNotFound)
	}
	return nil
}

type outcome int

const (
	outcomeIngested outcome = iota
	outcomeUpdated
	outcomeSkipped
)

// runScan processes ids through a bounded worker pool and records the
// run. storedHashes being non-nil marks update-check semantics: equal
// hashes short-circuit with zero writes.
func (c *Coordinator) runScan(ctx context.Context, mode string, ids []int64, storedHashes map[int64]string) (Result, error) {
	started := time.Now()
	var res Result

	if len(ids) > 0 {
		workers := min(c.cfg.Concurrency, len(ids))
		idCh := make(chan int64)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer close(idCh)
			for _, id := range ids {
				select {
				case idCh <- id:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})

		for range workers {
			w, err := c.fetcher.NewWorker()
			if err != nil {
				return res, err
			}
			g.Go(func() error {
				for id := range idCh {
					// Cancellation is honored between ids, never
					// mid-comic; ReplaceComic is atomic.
					if err := gctx.Err(); err != nil {
						return err
					}
					c.processOne(gctx, w, id, storedHashes, &res)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return res, err
		}
	}

	run := store.IngestRun{
		ID:         uuid.New(),
		Mode:       mode,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Ingested:   atomic.LoadInt32(&res.Ingested),
		Updated:    atomic.LoadInt32(&res.Updated),
		Skipped:    atomic.LoadInt32(&res.Skipped),
		Failed:     atomic.LoadInt32(&res.Failed),
	}
	if err := c.store.RecordRun(ctx, run); err != nil {
		c.logger.Warn("recording ingest run failed", "error", err)
	}

	c.logger.Info("scan finished", "mode", mode,
		"ingested", run.Ingested, "updated", run.Updated,
		"skipped", run.Skipped, "failed", run.Failed,
		"duration", run.FinishedAt.Sub(run.StartedAt))

	return Result{
		Ingested: run.Ingested,
		Updated:  run.Updated,
		Skipped:  run.Skipped,
		Failed:   run.Failed,
	}, ctx.Err()
}

// processOne runs the per-id pipeline and folds the outcome into the
// shared counters. All failures are absorbed here: logged, counted,
// and never propagated to the pool.
func (c *Coordinator) processOne(ctx context.Context, w FetchWorker, id int64, storedHashes map[int64]string, res *Result) {
	outcome, err := c.ingestOne(ctx, w, id, storedHashes)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// counted by nobody; the scan is being aborted
	case errors.Is(err, fetch.ErrNotFound):
		c.logger.Debug("comic not found upstream, skipping", "id", id)
		atomic.AddInt32(&res.Skipped, 1)
	case errors.Is(err, parse.ErrMalformed):
		c.logger.Warn("comic page malformed after retry, skipping", "id", id, "error", err)
		atomic.AddInt32(&res.Skipped, 1)
	case err != nil:
		c.logger.Warn("comic ingestion failed", "id", id, "error", err)
		atomic.AddInt32(&res.Failed, 1)
	case outcome == outcomeIngested:
		atomic.AddInt32(&res.Ingested, 1)
	case outcome == outcomeUpdated:
		atomic.AddInt32(&res.Updated, 1)
	default:
		atomic.AddInt32(&res.Skipped, 1)
	}
}

// ingestOne runs fetch → parse → hash check → chunk → embed → store
// for a single id.
func (c *Coordinator) ingestOne(ctx context.Context, w FetchWorker, id int64, storedHashes map[int64]string) (outcome, error) {
	page, err := w.Fetch(ctx, id)
	if err != nil {
		return outcomeSkipped, err
	}

	sections, err := parse.Parse(page)
	if errors.Is(err, parse.ErrMalformed) {
		// The page may have been served truncated; one re-fetch +
		// re-parse before giving up on the id.
		page, err = w.Fetch(ctx, id)
		if err != nil {
			return outcomeSkipped, err
		}
		sections, err = parse.Parse(page)
	}
	if err != nil {
		return outcomeSkipped, err
	}

	if sections.MissingExplanation {
		c.logger.Warn("comic has no explanation section", "id", id)
	}

	result := outcomeIngested
	if storedHashes != nil {
		stored, known := storedHashes[id]
		if known && !NeedsUpdate(stored, sections.Explanation) {
			return outcomeSkipped, nil
		}
		if known {
			result = outcomeUpdated
		}
	}

	drafts := c.chunker.Chunk(sections)
	if len(drafts) == 0 {
		return outcomeSkipped, fmt.Errorf("comic %d produced no chunks: %w", id, parse.ErrMalformed)
	}

	vectors, err := c.embedAll(ctx, drafts)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("embedding comic %d: %w", id, err)
	}

	chunks := make([]store.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = store.Chunk{
			ComicID:   id,
			Index:     d.Index,
			Section:   d.Section,
			Text:      d.Text,
			Embedding: vectors[i],
		}
	}

	comic := &store.Comic{
		ID:             id,
		Title:          sections.Title,
		ExplainURL:     c.fetcher.PageURL(id),
		XKCDURL:        c.cfg.XKCDBaseURL + "/" + strconv.FormatInt(id, 10) + "/",
		HoverText:      sections.HoverText,
		LastRevisionID: page.RevisionID,
		LastRevisionAt: page.RevisionAt,
		ContentHash:    ContentHash(sections.Explanation),
	}

	if err := c.store.ReplaceComic(ctx, comic, chunks); err != nil {
		return outcomeSkipped, err
	}
	return result, nil
}

// embedAll embeds all drafts of one comic in a single batch call.
// Batching is purely a throughput measure; the response order matches
// the input order.
func (c *Coordinator) embedAll(ctx context.Context, drafts []chunk.Draft) ([][]float32, error) {
	docs := make([]*ai.Document, len(drafts))
	for i, d := range drafts {
		docs[i] = ai.DocumentFromText(d.Text, nil)
	}

	var opts *genai.EmbedContentConfig
	if c.cfg.EmbeddingDim > 0 {
		dim := int32(c.cfg.EmbeddingDim)
		opts = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs, Options: opts})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(resp.Embeddings), len(docs))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		if c.cfg.EmbeddingDim > 0 && len(e.Embedding) != c.cfg.EmbeddingDim {
			return nil, fmt.Errorf("embedding dimension %d at index %d, want %d",
				len(e.Embedding), i, c.cfg.EmbeddingDim)
		}
		vectors[i] = e.Embedding
	}
	return vectors, nil
}

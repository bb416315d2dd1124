// Package store persists comics and their embedded chunks in
// PostgreSQL + pgvector, and serves nearest-neighbor chunk search.
//
// The ingestion side writes through [Store.ReplaceComic], which swaps
// a comic's entire chunk set in one transaction so concurrent readers
// never observe a partially replaced comic. The retrieval side only
// reads. No other state is shared between the two.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrComicNotFound indicates the requested comic id is not stored.
var ErrComicNotFound = errors.New("comic not found")

// ErrMetaNotFound indicates the requested sync metadata key is absent.
var ErrMetaNotFound = errors.New("metadata key not found")

const comicCols = `id, title, explain_url, xkcd_url, hover_text,
	last_revision_id, last_revision_at, content_hash, scraped_at, updated_at`

// Store provides access to the comic knowledge base.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// MaxComicID returns the highest stored comic id, or 0 for an empty store.
func (s *Store) MaxComicID(ctx context.Context) (int64, error) {
	var maxID int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM comics`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("querying max comic id: %w", err)
	}
	return maxID, nil
}

// ComicIDs returns all stored comic ids in ascending order.
func (s *Store) ComicIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM comics ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying comic ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning comic id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comic ids: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored comics.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting comics: %w", err)
	}
	return n, nil
}

// Comic returns the stored comic with the given id.
func (s *Store) Comic(ctx context.Context, id int64) (*Comic, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+comicCols+` FROM comics WHERE id = $1`, id)
	c, err := scanComic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("comic %d: %w", id, ErrComicNotFound)
		}
		return nil, fmt.Errorf("querying comic %d: %w", id, err)
	}
	return c, nil
}

// ComicHash returns the stored content hash for the given comic id.
func (s *Store) ComicHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT content_hash FROM comics WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("comic %d: %w", id, ErrComicNotFound)
		}
		return "", fmt.Errorf("querying hash for comic %d: %w", id, err)
	}
	return hash, nil
}

// ReplaceComic stores a comic and its complete chunk set atomically.
//
// The comic row is upserted (preserving scraped_at for existing rows),
// all prior chunks are deleted, and the new set is inserted, all in a
// single transaction. This is the only write path for ingestion:
// replace-all-chunks, never append.
func (s *Store) ReplaceComic(ctx context.Context, comic *Comic, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO comics (id, title, explain_url, xkcd_url, hover_text,
			last_revision_id, last_revision_at, content_hash, scraped_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			explain_url = EXCLUDED.explain_url,
			xkcd_url = EXCLUDED.xkcd_url,
			hover_text = EXCLUDED.hover_text,
			last_revision_id = EXCLUDED.last_revision_id,
			last_revision_at = EXCLUDED.last_revision_at,
			content_hash = EXCLUDED.content_hash,
			updated_at = now()`,
		comic.ID, comic.Title, comic.ExplainURL, comic.XKCDURL, comic.HoverText,
		comic.LastRevisionID, comic.LastRevisionAt, comic.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("upserting comic %d: %w", comic.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM comic_chunks WHERE comic_id = $1`, comic.ID); err != nil {
		return fmt.Errorf("deleting old chunks for comic %d: %w", comic.ID, err)
	}

	batch := &pgx.Batch{}
	for _, ch := range chunks {
		vec := pgvector.NewVector(ch.Embedding)
		batch.Queue(`
			INSERT INTO comic_chunks (comic_id, chunk_index, section, chunk_text, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			comic.ID, ch.Index, string(ch.Section), ch.Text, vec)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting chunks for comic %d: %w", comic.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing comic %d: %w", comic.ID, err)
	}

	s.logger.Debug("replaced comic", "id", comic.ID, "chunks", len(chunks))
	return nil
}

// SearchChunks returns up to k chunks nearest to the query embedding,
// ascending by cosine distance, joined with the owning comic's title
// and hover text.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, k int) ([]ChunkHit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT ch.comic_id, c.title, c.hover_text, ch.chunk_index, ch.section,
			ch.chunk_text, ch.embedding <=> $1 AS distance
		FROM comic_chunks ch
		JOIN comics c ON c.id = ch.comic_id
		ORDER BY ch.embedding <=> $1
		LIMIT $2`, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []ChunkHit
	for rows.Next() {
		var h ChunkHit
		var section string
		if err := rows.Scan(&h.ComicID, &h.ComicTitle, &h.HoverText,
			&h.Index, &section, &h.Text, &h.Distance); err != nil {
			return nil, fmt.Errorf("scanning chunk hit: %w", err)
		}
		h.Section = SectionType(section)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk hits: %w", err)
	}
	return hits, nil
}

// Meta returns the sync metadata value for key.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM sync_meta WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("key %q: %w", key, ErrMetaNotFound)
		}
		return "", fmt.Errorf("querying metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMeta writes a sync metadata key, overwriting any prior value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("setting metadata %q: %w", key, err)
	}
	return nil
}

// RecordRun persists one completed ingestion run.
func (s *Store) RecordRun(ctx context.Context, run IngestRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_runs (id, mode, started_at, finished_at, ingested, updated, skipped, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Mode, run.StartedAt, run.FinishedAt,
		run.Ingested, run.Updated, run.Skipped, run.Failed)
	if err != nil {
		return fmt.Errorf("recording ingest run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit ingestion runs, most recent first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, mode, started_at, finished_at, ingested, updated, skipped, failed
		FROM ingest_runs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var run IngestRun
		if err := rows.Scan(&run.ID, &run.Mode, &run.StartedAt, &run.FinishedAt,
			&run.Ingested, &run.Updated, &run.Skipped, &run.Failed); err != nil {
			return nil, fmt.Errorf("scanning ingest run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ingest runs: %w", err)
	}
	return runs, nil
}

// Stats returns store-wide counts and the most recent ingest run.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM comics),
			(SELECT COUNT(*) FROM comic_chunks),
			(SELECT COALESCE(MAX(id), 0) FROM comics)`).
		Scan(&st.Comics, &st.Chunks, &st.MaxComicID)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, mode, started_at, finished_at, ingested, updated, skipped, failed
		FROM ingest_runs ORDER BY finished_at DESC LIMIT 1`)
	var run IngestRun
	err = row.Scan(&run.ID, &run.Mode, &run.StartedAt, &run.FinishedAt,
		&run.Ingested, &run.Updated, &run.Skipped, &run.Failed)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// no runs yet
	case err != nil:
		return nil, fmt.Errorf("querying last ingest run: %w", err)
	default:
		st.LastRun = &run
	}

	return st, nil
}

func scanComic(row pgx.Row) (*Comic, error) {
	var c Comic
	err := row.Scan(&c.ID, &c.Title, &c.ExplainURL, &c.XKCDURL, &c.HoverText,
		&c.LastRevisionID, &c.LastRevisionAt, &c.ContentHash, &c.ScrapedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

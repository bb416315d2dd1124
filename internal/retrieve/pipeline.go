package retrieve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panelbase/panelbase/internal/store"
)

// ThemeExtractor is the query-enhancement stage.
type ThemeExtractor interface {
	ExtractThemes(ctx context.Context, query string) ([]string, error)
}

// ChunkSearcher is the vector-search stage.
type ChunkSearcher interface {
	Search(ctx context.Context, text string, k int) ([]store.ChunkHit, error)
}

// Selector is the re-ranking stage.
type Selector interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Selection, error)
}

// Config holds the pipeline's retrieval constants.
type Config struct {
	SearchTopK   int // chunk hits requested from vector search
	CandidateCap int // max aggregated candidates passed to re-ranking
}

// Pipeline composes the retrieval stages in strict sequence: theme
// extraction, vector search, aggregation, re-ranking. Each stage
// consumes the previous stage's full output.
//
// Pipeline holds no mutable state; independent queries may run fully
// concurrently.
type Pipeline struct {
	enhancer  ThemeExtractor
	retriever ChunkSearcher
	reranker  Selector
	cfg       Config
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(enhancer ThemeExtractor, retriever ChunkSearcher, reranker Selector, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if enhancer == nil || retriever == nil || reranker == nil {
		return nil, fmt.Errorf("enhancer, retriever and reranker are required")
	}
	if cfg.SearchTopK < 1 || cfg.CandidateCap < 1 {
		return nil, fmt.Errorf("invalid pipeline config: top_k=%d cap=%d", cfg.SearchTopK, cfg.CandidateCap)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		enhancer:  enhancer,
		retriever: retriever,
		reranker:  reranker,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Answer resolves a query to at most the re-ranker's selection count.
//
// Theme extraction failing degrades to searching with the raw query:
// degraded but available. Vector search and re-ranking failures are
// fatal and surfaced; there is nothing safe to fall back to for final
// selection. An empty store yields an empty result, which is a defined
// success.
func (p *Pipeline) Answer(ctx context.Context, query string) ([]Selection, error) {
	searchText := query
	themes, err := p.enhancer.ExtractThemes(ctx, query)
	if err != nil {
		p.logger.Warn("theme extraction failed, searching with raw query", "error", err)
	} else {
		searchText = Augment(query, themes)
	}

	hits, err := p.retriever.Search(ctx, searchText, p.cfg.SearchTopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		p.logger.Debug("no chunk hits for query", "query", query)
		return nil, nil
	}

	candidates := Aggregate(hits, p.cfg.CandidateCap)

	selections, err := p.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	return selections, nil
}

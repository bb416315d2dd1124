package retrieve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/panelbase/panelbase/internal/store"
)

// Searcher is the nearest-neighbor surface of the content store.
type Searcher interface {
	SearchChunks(ctx context.Context, embedding []float32, k int) ([]store.ChunkHit, error)
}

// Retriever embeds query text and runs vector search against the
// chunk index.
type Retriever struct {
	store    Searcher
	embedder ai.Embedder
	dim      int
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. dim must match the dimensionality
// the chunk index was created with.
func NewRetriever(searcher Searcher, embedder ai.Embedder, dim int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: searcher, embedder: embedder, dim: dim, logger: logger}
}

// Search embeds text and returns up to k chunk hits ascending by
// cosine distance.
func (r *Retriever) Search(ctx context.Context, text string, k int) ([]store.ChunkHit, error) {
	var opts *genai.EmbedContentConfig
	if r.dim > 0 {
		dim := int32(r.dim)
		opts = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for query")
	}

	hits, err := r.store.SearchChunks(ctx, resp.Embeddings[0].Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	r.logger.Debug("vector search", "k", k, "hits", len(hits))
	return hits, nil
}

package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/panelbase/panelbase/internal/llm"
)

const rerankPromptTemplate = `You are ranking webcomic explanations against a user's query.
Pick the at most %d comics that best answer the query and explain why.

Query: %q

Candidates:
%s
Respond with a JSON array only, no other text, each element:
{"id": <candidate id>, "rationale": "<one sentence reason>"}
Use only ids from the candidate list. Order from best match to worst.`

// Selection is one re-ranked result: a comic id from the candidate
// set plus the model's justification.
type Selection struct {
	ComicID   int64
	Title     string
	Rationale string
}

// Reranker performs LLM-assisted final selection over aggregated
// candidates.
type Reranker struct {
	llm    llm.Completer
	max    int
	logger *slog.Logger
}

// NewReranker creates a Reranker returning at most max selections.
func NewReranker(completer llm.Completer, max int, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{llm: completer, max: max, logger: logger}
}

// Rerank asks the model to select and justify the best candidates.
//
// The model must stay grounded in the retrieved set: any returned id
// not among the input candidates fails the whole call with
// llm.ErrMalformedResponse rather than silently substituting.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Selection, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	raw, err := r.llm.Complete(ctx, fmt.Sprintf(rerankPromptTemplate, r.max, query, formatCandidates(candidates)))
	if err != nil {
		return nil, fmt.Errorf("re-ranking: %w", err)
	}

	type rankedItem struct {
		ID        int64  `json:"id"`
		Rationale string `json:"rationale"`
	}
	items, err := llm.DecodeJSON[[]rankedItem](raw)
	if err != nil {
		return nil, fmt.Errorf("re-ranking: %w", err)
	}

	byID := make(map[int64]*Candidate, len(candidates))
	for i := range candidates {
		byID[candidates[i].ComicID] = &candidates[i]
	}

	var selections []Selection
	seen := make(map[int64]bool)
	for _, item := range items {
		cand, ok := byID[item.ID]
		if !ok {
			return nil, fmt.Errorf("re-ranking: id %d not among candidates: %w", item.ID, llm.ErrMalformedResponse)
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		selections = append(selections, Selection{
			ComicID:   cand.ComicID,
			Title:     cand.Title,
			Rationale: strings.TrimSpace(item.Rationale),
		})
		if len(selections) == r.max {
			break
		}
	}

	if len(selections) == 0 {
		return nil, fmt.Errorf("re-ranking: empty selection: %w", llm.ErrMalformedResponse)
	}
	return selections, nil
}

// formatCandidates renders the candidate list for the re-rank prompt:
// id, title, hover text, and a bounded number of matched excerpts.
func formatCandidates(candidates []Candidate) string {
	const maxExcerpts = 3

	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id %d: %s\n", c.ComicID, c.Title)
		if c.HoverText != "" {
			fmt.Fprintf(&b, "  hover: %s\n", c.HoverText)
		}
		for i, e := range c.Excerpts {
			if i == maxExcerpts {
				break
			}
			fmt.Fprintf(&b, "  excerpt: %s\n", e)
		}
	}
	return b.String()
}

// Package retrieve answers natural-language queries against the
// knowledge base: theme extraction, vector search, per-comic
// aggregation, and LLM re-ranking composed into a [Pipeline].
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/panelbase/panelbase/internal/llm"
)

const maxThemes = 5

const themesPromptTemplate = `You are helping search a knowledge base of webcomic explanations.
Extract 3 to 5 short thematic search terms from the user's query.
Focus on topics, concepts and subject matter, not phrasing.

Query: %q

Respond with a JSON array of strings only, no other text.
Example: ["computer security", "SQL", "databases"]`

// Enhancer extracts thematic search terms from a raw query via the
// completion model.
type Enhancer struct {
	llm    llm.Completer
	logger *slog.Logger
}

// NewEnhancer creates an Enhancer.
func NewEnhancer(completer llm.Completer, logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhancer{llm: completer, logger: logger}
}

// ExtractThemes asks the model for 3-5 thematic terms describing the
// query. A response that does not parse as a non-empty JSON string
// array is llm.ErrMalformedResponse; it is surfaced, not swallowed,
// because silently dropping themes degrades retrieval without signal.
func (e *Enhancer) ExtractThemes(ctx context.Context, query string) ([]string, error) {
	raw, err := e.llm.Complete(ctx, fmt.Sprintf(themesPromptTemplate, query))
	if err != nil {
		return nil, fmt.Errorf("extracting themes: %w", err)
	}

	themes, err := llm.DecodeJSON[[]string](raw)
	if err != nil {
		return nil, fmt.Errorf("extracting themes: %w", err)
	}

	cleaned := themes[:0]
	for _, t := range themes {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("extracting themes: no themes in response: %w", llm.ErrMalformedResponse)
	}
	if len(cleaned) > maxThemes {
		cleaned = cleaned[:maxThemes]
	}

	e.logger.Debug("extracted themes", "query", query, "themes", cleaned)
	return cleaned, nil
}

// Augment composes the search text from the original query and its
// themes. Pure string composition: no I/O, no failure mode.
func Augment(query string, themes []string) string {
	if len(themes) == 0 {
		return query
	}
	return query + "\nRelated themes: " + strings.Join(themes, ", ")
}

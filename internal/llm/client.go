// Package llm wraps the completion model behind a small Completer
// interface and provides strict decoding of model output.
//
// Model output is untrusted text. Stages that expect structured output
// must parse it with [DecodeJSON] and treat failure as
// [ErrMalformedResponse]; nothing in this package guesses or repairs.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// Completer is the completion collaborator: one prompt in, one text
// response out. Implementations must honor context cancellation.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client is a genkit-backed Completer with a token-bucket rate limit
// and a per-call timeout.
type Client struct {
	g       *genkit.Genkit
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a Client. ratePerMinute bounds outbound completion
// calls; timeout applies per call.
func NewClient(g *genkit.Genkit, model string, ratePerMinute int, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if ratePerMinute < 1 {
		ratePerMinute = 1
	}
	return &Client{
		g:       g,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute),
		timeout: timeout,
		logger:  logger,
	}
}

// Complete sends one prompt to the model and returns its text response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := genkit.Generate(callCtx, c.g,
		ai.WithModelName(c.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	text := resp.Text()
	c.logger.Debug("completion",
		"model", c.model,
		"prompt_chars", len(prompt),
		"response_chars", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}

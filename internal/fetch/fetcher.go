// Package fetch retrieves explanation pages from the source wiki.
//
// Pages are read through the MediaWiki revisions API, which returns
// the raw wikitext together with the revision id and timestamp in one
// request. Each ingestion worker owns a [Worker] whose collector
// enforces a minimum delay between its own successive requests; the
// global in-flight cap is the ingestion coordinator's concern.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "panelbase/1.0 (+https://github.com/panelbase/panelbase)"

// RawPage is one fetched wiki page: the wikitext of its latest
// revision plus revision metadata.
type RawPage struct {
	ID         int64
	PageTitle  string // wiki page title, e.g. "149: Sandwich"
	Wikitext   string
	RevisionID int64
	RevisionAt time.Time
}

// Config holds fetcher settings.
type Config struct {
	APIURL    string        // MediaWiki api.php endpoint
	LatestURL string        // JSON endpoint exposing the newest comic id
	Timeout   time.Duration // per-request deadline
	Delay     time.Duration // minimum delay between one worker's requests
	UserAgent string
}

// Fetcher creates per-goroutine fetch workers against one source wiki.
type Fetcher struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Fetcher.
func New(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("APIURL is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("Timeout must be positive")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{cfg: cfg, logger: logger}, nil
}

// PageURL returns the human-readable wiki page URL for a comic id.
func (f *Fetcher) PageURL(id int64) string {
	base := strings.TrimSuffix(f.cfg.APIURL, "api.php")
	return base + "index.php/" + strconv.FormatInt(id, 10)
}

// Worker is a self-throttled fetch client. Each worker serializes its
// own requests with the configured minimum delay; distinct workers
// fetch concurrently. A Worker must not be shared across goroutines.
type Worker struct {
	fetcher   *Fetcher
	collector *colly.Collector

	// per-request state captured by collector callbacks
	body       []byte
	statusCode int
	reqErr     error
}

// NewWorker creates a fetch worker with its own rate-limited collector.
func (f *Fetcher) NewWorker() (*Worker, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.Delay > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: f.cfg.Delay}); err != nil {
			return nil, fmt.Errorf("configuring rate limit: %w", err)
		}
	}

	w := &Worker{fetcher: f, collector: c}
	c.OnResponse(func(r *colly.Response) {
		w.body = r.Body
		w.statusCode = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			w.statusCode = r.StatusCode
		}
		w.reqErr = err
	})
	return w, nil
}

// Fetch retrieves the wiki page for one comic id.
//
// ErrUpstream, ErrTimeout, and ErrRateLimited are retried once with no
// delay beyond the worker's rate-limit floor; the second failure is
// surfaced. ErrNotFound is never retried.
func (w *Worker) Fetch(ctx context.Context, id int64) (*RawPage, error) {
	page, err := w.fetchOnce(ctx, id)
	if err != nil && retryable(err) {
		w.fetcher.logger.Debug("retrying fetch", "id", id, "error", err)
		page, err = w.fetchOnce(ctx, id)
	}
	return page, err
}

func (w *Worker) fetchOnce(ctx context.Context, id int64) (*RawPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := w.visit(w.fetcher.revisionsURL(id))
	if err != nil {
		return nil, fmt.Errorf("fetching comic %d: %w", id, err)
	}

	page, err := parseRevisionsResponse(id, body)
	if err != nil {
		return nil, fmt.Errorf("fetching comic %d: %w", id, err)
	}
	return page, nil
}

// visit performs one rate-limited request and maps transport and HTTP
// failures onto the fetch error taxonomy.
func (w *Worker) visit(u string) ([]byte, error) {
	w.body = nil
	w.statusCode = 0
	w.reqErr = nil

	err := w.collector.Visit(u)
	if err == nil && w.reqErr != nil {
		err = w.reqErr
	}
	if err != nil {
		return nil, classify(w.statusCode, err)
	}
	return w.body, nil
}

// LatestID returns the highest comic id available upstream.
func (f *Fetcher) LatestID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.cfg.LatestURL == "" {
		return 0, fmt.Errorf("latest-id endpoint not configured")
	}

	w, err := f.NewWorker()
	if err != nil {
		return 0, err
	}

	body, err := w.visit(f.cfg.LatestURL)
	if err != nil {
		if retryable(err) {
			body, err = w.visit(f.cfg.LatestURL)
		}
		if err != nil {
			return 0, fmt.Errorf("fetching latest id: %w", err)
		}
	}

	var latest struct {
		Num int64 `json:"num"`
	}
	if err := json.Unmarshal(body, &latest); err != nil {
		return 0, fmt.Errorf("decoding latest id: %w: %v", ErrUpstream, err)
	}
	if latest.Num < 1 {
		return 0, fmt.Errorf("decoding latest id: %w: num=%d", ErrUpstream, latest.Num)
	}
	return latest.Num, nil
}

// revisionsURL builds the MediaWiki API request for one comic id.
// The wiki redirects the bare number to the "<n>: <title>" page.
func (f *Fetcher) revisionsURL(id int64) string {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("redirects", "1")
	q.Set("prop", "revisions")
	q.Set("rvprop", "ids|timestamp|content")
	q.Set("rvslots", "main")
	q.Set("titles", strconv.FormatInt(id, 10))
	return f.cfg.APIURL + "?" + q.Encode()
}

// revisionsResponse mirrors the MediaWiki formatversion=2 shape.
type revisionsResponse struct {
	Query struct {
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Revisions []struct {
				RevID     int64     `json:"revid"`
				Timestamp time.Time `json:"timestamp"`
				Slots     struct {
					Main struct {
						Content string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
}

func parseRevisionsResponse(id int64, body []byte) (*RawPage, error) {
	var resp revisionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding API response: %w: %v", ErrUpstream, err)
	}
	if len(resp.Query.Pages) == 0 {
		return nil, fmt.Errorf("empty API response: %w", ErrNotFound)
	}

	p := resp.Query.Pages[0]
	if p.Missing || len(p.Revisions) == 0 {
		return nil, ErrNotFound
	}

	rev := p.Revisions[0]
	return &RawPage{
		ID:         id,
		PageTitle:  p.Title,
		Wikitext:   rev.Slots.Main.Content,
		RevisionID: rev.RevID,
		RevisionAt: rev.Timestamp,
	}, nil
}

// classify maps an HTTP status code and transport error onto the
// package error taxonomy.
func classify(statusCode int, err error) error {
	switch statusCode {
	case 404, 410:
		return ErrNotFound
	case 429:
		return fmt.Errorf("%w (status %d)", ErrRateLimited, statusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

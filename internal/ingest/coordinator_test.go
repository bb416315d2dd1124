package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/panelbase/panelbase/internal/chunk"
	"github.com/panelbase/panelbase/internal/fetch"
	"github.com/panelbase/panelbase/internal/store"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockStore implements Store for testing. Safe for concurrent use
// because the coordinator calls it from worker goroutines.
type mockStore struct {
	mu sync.Mutex

	maxID  int64
	ids    []int64
	hashes map[int64]string

	maxIDErr   error
	replaceErr error

	replaced      map[int64][]store.Chunk // comic id -> chunks written
	replacedComic map[int64]*store.Comic
	runs          []store.IngestRun
}

func newMockStore() *mockStore {
	return &mockStore{
		hashes:        make(map[int64]string),
		replaced:      make(map[int64][]store.Chunk),
		replacedComic: make(map[int64]*store.Comic),
	}
}

func (m *mockStore) MaxComicID(ctx context.Context) (int64, error) {
	if m.maxIDErr != nil {
		return 0, m.maxIDErr
	}
	return m.maxID, nil
}

func (m *mockStore) ComicIDs(ctx context.Context) ([]int64, error) {
	return m.ids, nil
}

func (m *mockStore) ComicHash(ctx context.Context, id int64) (string, error) {
	return m.hashes[id], nil
}

func (m *mockStore) ReplaceComic(ctx context.Context, comic *store.Comic, chunks []store.Chunk) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced[comic.ID] = chunks
	m.replacedComic[comic.ID] = comic
	return nil
}

func (m *mockStore) RecordRun(ctx context.Context, run store.IngestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) replaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replaced)
}

// mockFetcher implements Fetcher. Pages and errors are keyed by id;
// fetch counts are tracked for retry assertions.
type mockFetcher struct {
	mu sync.Mutex

	latest     int64
	latestErr  error
	pages      map[int64]*fetch.RawPage
	fetchErrs  map[int64]error
	fetchCalls map[int64]int

	latestCalls int
}

func newMockFetcher(latest int64) *mockFetcher {
	return &mockFetcher{
		latest:     latest,
		pages:      make(map[int64]*fetch.RawPage),
		fetchErrs:  make(map[int64]error),
		fetchCalls: make(map[int64]int),
	}
}

func (m *mockFetcher) NewWorker() (FetchWorker, error) {
	return &mockWorker{fetcher: m}, nil
}

func (m *mockFetcher) LatestID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	m.latestCalls++
	m.mu.Unlock()
	if m.latestErr != nil {
		return 0, m.latestErr
	}
	return m.latest, nil
}

func (m *mockFetcher) PageURL(id int64) string {
	return fmt.Sprintf("https://wiki.test/index.php/%d", id)
}

func (m *mockFetcher) calls(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls[id]
}

type mockWorker struct {
	fetcher *mockFetcher
}

func (w *mockWorker) Fetch(ctx context.Context, id int64) (*fetch.RawPage, error) {
	w.fetcher.mu.Lock()
	w.fetcher.fetchCalls[id]++
	w.fetcher.mu.Unlock()

	if err := w.fetcher.fetchErrs[id]; err != nil {
		return nil, err
	}
	if page, ok := w.fetcher.pages[id]; ok {
		return page, nil
	}
	return nil, fetch.ErrNotFound
}

// mockEmbedder implements ai.Embedder for testing
type mockEmbedder struct {
	dim      int
	embedErr error

	mu        sync.Mutex
	callCount int
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {
	// No-op for testing
}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.embedErr != nil {
		return nil, m.embedErr
	}

	dim := m.dim
	if dim == 0 {
		dim = 3
	}
	resp := &ai.EmbedResponse{}
	for range req.Input {
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = 0.1
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}

// ============================================================================
// Helpers
// ============================================================================

func goodPage(id int64, explanation string) *fetch.RawPage {
	return &fetch.RawPage{
		ID:        id,
		PageTitle: fmt.Sprintf("%d: Comic %d", id, id),
		Wikitext: fmt.Sprintf(`{{comic
| number    = %d
| title     = Comic %d
| titletext = Hover text %d.
}}

== Explanation ==
%s
`, id, id, id, explanation),
	}
}

func newTestCoordinator(t *testing.T, st *mockStore, f *mockFetcher, emb *mockEmbedder) *Coordinator {
	t.Helper()
	c, err := New(st, f, chunk.New(200, 500, 80), emb, Config{
		Concurrency:  2,
		EmbeddingDim: 3,
		XKCDBaseURL:  "https://xkcd.com",
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

// ============================================================================
// Scan Tests
// ============================================================================

func TestScrapeAll_IngestsOnlyMissing(t *testing.T) {
	st := newMockStore()
	st.ids = []int64{2}

	f := newMockFetcher(3)
	for _, id := range []int64{1, 2, 3} {
		f.pages[id] = goodPage(id, "An explanation of the joke in this comic.")
	}

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	res, err := c.ScrapeAll(context.Background())
	if err != nil {
		t.Fatalf("ScrapeAll failed: %v", err)
	}

	if res.Ingested != 2 {
		t.Errorf("Ingested = %d, want 2", res.Ingested)
	}
	if st.replaceCount() != 2 {
		t.Errorf("ReplaceComic called for %d comics, want 2", st.replaceCount())
	}
	if _, ok := st.replaced[2]; ok {
		t.Error("already-stored comic 2 was rewritten")
	}
	if f.calls(2) != 0 {
		t.Error("already-stored comic 2 was fetched")
	}
}

func TestScrapeAll_WritesCompleteComic(t *testing.T) {
	st := newMockStore()
	f := newMockFetcher(1)
	f.pages[1] = goodPage(1, "An explanation of the joke in this comic.")

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})
	if _, err := c.ScrapeAll(context.Background()); err != nil {
		t.Fatalf("ScrapeAll failed: %v", err)
	}

	comic := st.replacedComic[1]
	if comic == nil {
		t.Fatal("comic 1 not written")
	}
	if comic.Title != "Comic 1" {
		t.Errorf("Title = %q", comic.Title)
	}
	if comic.ExplainURL != "https://wiki.test/index.php/1" {
		t.Errorf("ExplainURL = %q", comic.ExplainURL)
	}
	if comic.XKCDURL != "https://xkcd.com/1/" {
		t.Errorf("XKCDURL = %q", comic.XKCDURL)
	}
	if comic.ContentHash == "" {
		t.Error("ContentHash not set")
	}

	chunks := st.replaced[1]
	if len(chunks) == 0 {
		t.Fatal("no chunks written")
	}
	for i, ch := range chunks {
		if ch.Index != int32(i) {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if ch.ComicID != 1 {
			t.Errorf("chunk %d has comic id %d", i, ch.ComicID)
		}
		if len(ch.Embedding) != 3 {
			t.Errorf("chunk %d embedding dim = %d", i, len(ch.Embedding))
		}
	}
}

func TestScrapeNew_NothingNew(t *testing.T) {
	st := newMockStore()
	st.maxID = 5
	f := newMockFetcher(5)

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	n, err := c.ScrapeNew(context.Background())
	if err != nil {
		t.Fatalf("ScrapeNew failed: %v", err)
	}
	if n != 0 {
		t.Errorf("ingested = %d, want 0", n)
	}
	if st.replaceCount() != 0 {
		t.Error("ReplaceComic called when nothing is new")
	}
}

func TestScrapeNew_IngestsAboveStoredMax(t *testing.T) {
	st := newMockStore()
	st.maxID = 2
	f := newMockFetcher(4)
	f.pages[3] = goodPage(3, "Explanation of comic three and its joke.")
	f.pages[4] = goodPage(4, "Explanation of comic four and its joke.")

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	n, err := c.ScrapeNew(context.Background())
	if err != nil {
		t.Fatalf("ScrapeNew failed: %v", err)
	}
	if n != 2 {
		t.Errorf("ingested = %d, want 2", n)
	}
	if f.calls(1) != 0 || f.calls(2) != 0 {
		t.Error("ids at or below the stored max were fetched")
	}
}

func TestCheckUpdates_UnchangedComicCausesZeroWrites(t *testing.T) {
	explanation := "A stable explanation that has not been edited."

	st := newMockStore()
	st.ids = []int64{1}
	st.hashes[1] = ContentHash(explanation)

	f := newMockFetcher(1)
	f.pages[1] = goodPage(1, explanation)

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	n, err := c.CheckUpdates(context.Background())
	if err != nil {
		t.Fatalf("CheckUpdates failed: %v", err)
	}
	if n != 0 {
		t.Errorf("updated = %d, want 0", n)
	}
	if st.replaceCount() != 0 {
		t.Error("unchanged comic was rewritten")
	}
}

func TestCheckUpdates_ChangedComicIsReingested(t *testing.T) {
	st := newMockStore()
	st.ids = []int64{1}
	st.hashes[1] = ContentHash("the old explanation text")

	f := newMockFetcher(1)
	f.pages[1] = goodPage(1, "A freshly edited explanation with new content.")

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	n, err := c.CheckUpdates(context.Background())
	if err != nil {
		t.Fatalf("CheckUpdates failed: %v", err)
	}
	if n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}
	if st.replaceCount() != 1 {
		t.Errorf("ReplaceComic called %d times, want 1", st.replaceCount())
	}
	if st.replacedComic[1].ContentHash == ContentHash("the old explanation text") {
		t.Error("stored hash not refreshed")
	}
}

// ============================================================================
// Failure Isolation Tests
// ============================================================================

func TestScrapeAll_NotFoundIsSkippedNotFailed(t *testing.T) {
	st := newMockStore()
	f := newMockFetcher(2)
	f.pages[2] = goodPage(2, "Explanation for the comic that exists.")
	// id 1 has no page: the mock returns fetch.ErrNotFound

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	res, err := c.ScrapeAll(context.Background())
	if err != nil {
		t.Fatalf("ScrapeAll failed: %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	if res.Failed != 0 {
		t.Errorf("Failed = %d, want 0", res.Failed)
	}
	if res.Ingested != 1 {
		t.Errorf("Ingested = %d, want 1", res.Ingested)
	}
	if f.calls(1) != 1 {
		t.Errorf("not-found id fetched %d times, want 1 (never retried)", f.calls(1))
	}
}

func TestScrapeAll_MalformedPageRefetchedOnce(t *testing.T) {
	st := newMockStore()
	f := newMockFetcher(1)
	f.pages[1] = &fetch.RawPage{ID: 1, PageTitle: "garbage", Wikitext: "no structure at all"}

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	res, err := c.ScrapeAll(context.Background())
	if err != nil {
		t.Fatalf("ScrapeAll failed: %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	if got := f.calls(1); got != 2 {
		t.Errorf("malformed page fetched %d times, want 2 (one refetch)", got)
	}
	if st.replaceCount() != 0 {
		t.Error("malformed page was written")
	}
}

func TestScrapeAll_EmbedderFailureCountsAsFailed(t *testing.T) {
	st := newMockStore()
	f := newMockFetcher(1)
	f.pages[1] = goodPage(1, "Explanation text that will fail to embed.")

	c := newTestCoordinator(t, st, f, &mockEmbedder{embedErr: errors.New("quota exhausted")})

	res, err := c.ScrapeAll(context.Background())
	if err != nil {
		t.Fatalf("ScrapeAll failed: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if st.replaceCount() != 0 {
		t.Error("comic written despite embedding failure")
	}
}

func TestScrapeAll_WrongEmbeddingDimRejected(t *testing.T) {
	st := newMockStore()
	f := newMockFetcher(1)
	f.pages[1] = goodPage(1, "Explanation text embedded at the wrong width.")

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 5})

	res, err := c.ScrapeAll(context.Background())
	if err != nil {
		t.Fatalf("ScrapeAll failed: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if st.replaceCount() != 0 {
		t.Error("comic written despite dimension mismatch")
	}
}

func TestScrapeAll_LatestIDFailureIsFatal(t *testing.T) {
	st := newMockStore()
	f := newMockFetcher(0)
	f.latestErr = fetch.ErrUpstream

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	if _, err := c.ScrapeAll(context.Background()); !errors.Is(err, fetch.ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
}

func TestScrapeAll_RecordsRun(t *testing.T) {
	st := newMockStore()
	f := newMockFetcher(1)
	f.pages[1] = goodPage(1, "Explanation for the run-recording test.")

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})
	if _, err := c.ScrapeAll(context.Background()); err != nil {
		t.Fatalf("ScrapeAll failed: %v", err)
	}

	if len(st.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(st.runs))
	}
	run := st.runs[0]
	if run.Mode != "full" {
		t.Errorf("Mode = %q, want full", run.Mode)
	}
	if run.Ingested != 1 {
		t.Errorf("run.Ingested = %d, want 1", run.Ingested)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
}

// ============================================================================
// ScrapeOne Tests
// ============================================================================

func TestScrapeOne(t *testing.T) {
	st := newMockStore()
	f := newMockFetcher(1)
	f.pages[7] = goodPage(7, "Explanation for a single requested comic.")

	c := newTestCoordinator(t, st, f, &mockEmbedder{dim: 3})

	if err := c.ScrapeOne(context.Background(), 7); err != nil {
		t.Fatalf("ScrapeOne failed: %v", err)
	}
	if st.replaceCount() != 1 {
		t.Errorf("ReplaceComic called %d times, want 1", st.replaceCount())
	}

	if err := c.ScrapeOne(context.Background(), 999); !errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(nil, newMockFetcher(1), chunk.New(200, 500, 80), &mockEmbedder{}, Config{}, nil); err == nil {
		t.Error("New accepted a nil store")
	}
	if _, err := New(newMockStore(), nil, chunk.New(200, 500, 80), &mockEmbedder{}, Config{}, nil); err == nil {
		t.Error("New accepted a nil fetcher")
	}
}

package store

import (
	"time"

	"github.com/google/uuid"
)

// SectionType identifies which part of an explanation page a chunk
// came from. Values match the section column in comic_chunks.
type SectionType string

const (
	SectionTitleHover  SectionType = "title_hover"
	SectionExplanation SectionType = "explanation"
	SectionTranscript  SectionType = "transcript"
	SectionTrivia      SectionType = "trivia"
)

// Comic is one knowledge-base entry: a comic plus metadata about the
// wiki revision it was ingested from.
type Comic struct {
	ID             int64     // xkcd comic number, stable external id
	Title          string
	ExplainURL     string    // explanation wiki page
	XKCDURL        string    // origin page
	HoverText      string    // title text, may be empty
	LastRevisionID int64     // wiki revision the content came from
	LastRevisionAt time.Time // wiki revision timestamp
	ContentHash    string    // sha256 over the normalized explanation
	ScrapedAt      time.Time // first ingested
	UpdatedAt      time.Time // last (re-)ingested
}

// Chunk is a bounded fragment of a comic's explanation page,
// independently embedded. (ComicID, Index) is unique; indices are
// contiguous from 0 in section order title_hover, explanation,
// transcript, trivia.
type Chunk struct {
	ComicID   int64
	Index     int32
	Section   SectionType
	Text      string
	Embedding []float32
}

// ChunkHit is one nearest-neighbor result, joined with the owning
// comic's title and hover text for downstream ranking stages.
type ChunkHit struct {
	ComicID    int64
	ComicTitle string
	HoverText  string
	Index      int32
	Section    SectionType
	Text       string
	Distance   float64 // cosine distance, lower is more similar
}

// IngestRun records one completed ingestion pass for observability.
type IngestRun struct {
	ID         uuid.UUID
	Mode       string // "full", "incremental", "update-check", "single"
	StartedAt  time.Time
	FinishedAt time.Time
	Ingested   int32
	Updated    int32
	Skipped    int32
	Failed     int32
}

// Stats summarizes store contents for the stats command.
type Stats struct {
	Comics     int64
	Chunks     int64
	MaxComicID int64
	LastRun    *IngestRun // nil when no run has been recorded
}

// Sync metadata keys. Written once at schema init, read at startup.
const (
	MetaSchemaInitialized = "schema_initialized"
	MetaEmbeddingDim      = "embedding_dim"
	MetaEmbedderModel     = "embedder_model"
)

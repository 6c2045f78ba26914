package ingestion_engine

import (
	"github.com/citevault/citevault/internal/core"
)

// IngestConfig tunes the streaming pipeline.
//
// TargetTokens:  approximate tokens per chunk (e.g., 500).
// OverlapTokens: token overlap between consecutive chunks for context bleed (e.g., 50).
// BatchSize:     how many chunks to embed in one provider call (e.g., 16).
// EmbedDim:      expected embedding dimension; mismatched vectors abort the job.
type IngestConfig struct {
	TargetTokens  int
	OverlapTokens int
	BatchSize     int
	EmbedDim      int
}

// chunk is the internal representation passed through the pipeline.
//
// Pos:       stable, zero-based position of the chunk inside the document.
// Text:      chunk content (built from one or more fragments).
// CharStart: absolute rune offset of the chunk's first fragment.
// CharEnd:   absolute rune offset just past the chunk's last fragment.
// TokenCnt:  approximate token count (used for batching and overlap math).
type chunk struct {
	Pos       int
	Text      string
	CharStart int
	CharEnd   int
	TokenCnt  int
}

// DocumentIngestor runs the background ingestion pipeline for queued jobs:
//
// engine:   job state machine; every transition goes through it.
// db:       document lookups.
// obj:      object storage holding the raw bytes.
// embedder: embedding provider.
// extract:  text extraction from raw bytes.
// jobs:     in-memory queue of job IDs to process.
type DocumentIngestor struct {
	engine   *JobEngine
	db       core.DbClient
	obj      core.ObjectClient
	embedder core.EmbeddingProvider
	extract  core.DocumentExtractor
	cfg      *IngestConfig
	jobs     chan string
}

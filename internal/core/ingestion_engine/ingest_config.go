package ingestion_engine

import (
	"go.uber.org/zap"

	"github.com/ragstack/corpora/internal/core"
)

// IngestConfig tunes the processing pipeline.
//
// TargetTokens:     approximate tokens per chunk (e.g., 500).
// OverlapTokens:    token overlap between consecutive chunks for context bleed (e.g., 50).
// BatchSize:        how many chunks to embed/write in one batch (e.g., 32).
// PageCharEstimate: fallback page size in characters when the source format
//                   carries no page boundaries.
// EnableEnrichment: when false, image/table partitions keep their raw
//                   extracted content instead of an AI description.
type IngestConfig struct {
	TargetTokens     int
	OverlapTokens    int
	BatchSize        int
	PageCharEstimate int
	EnableEnrichment bool
	Bucket           string
}

// partition is one extracted region of the document: a text block, or an
// image/table region destined for AI enrichment.
type partition struct {
	Kind string // models.ChunkTypeText | ChunkTypeImage | ChunkTypeTable
	Page int    // 1-based source page
	Text string
}

// fragment is a page-attributed line of text flowing from the partitioner
// into the chunker.
type fragment struct {
	Page int
	Text string
}

// chunk is the internal representation passed through the chunking stage.
//
// Pos:      stable, zero-based position of the chunk inside the document.
// Page:     source page of the first fragment in the chunk.
// Text:     chunk content (built from one or more fragments).
// TokenCnt: approximate token count (used for batching and overlap math).
type chunk struct {
	Pos      int
	Page     int
	Text     string
	TokenCnt int
}

// DocumentIngestor orchestrates the background ingestion pipeline:
//
// db:        persistence for documents, stage states and chunks.
// obj:       object storage holding the uploaded files.
// embedder:  embedding provider (Gemini/OpenAI/etc).
// llm:       description generator for image/table partitions.
// extractor: raw text extraction per content type.
// kw:        keyword index fed by the indexing stage.
// jobs:      in-memory queue of document IDs to process (easy to swap with a broker later).
type DocumentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	llm       core.LLMProvider
	extractor core.DocumentExtractor
	kw        core.KeywordIndex
	cfg       *IngestConfig
	log       *zap.Logger
	jobs      chan string
}

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}

// Package pipeline models the ordered stage machine an uploaded document
// moves through, from binary transfer to search-index build. It records
// transitions reported by the ingestion workers; it does no processing itself.
package pipeline

// Stage identifies one step of the ingestion pipeline.
type Stage string

const (
	StageUploading    Stage = "uploading"
	StageQueued       Stage = "queued"
	StageAnalysis     Stage = "analysis"
	StagePartitioning Stage = "partitioning"
	StageEnrichment   Stage = "enrichment"
	StageChunking     Stage = "chunking"
	StageEmbedding    Stage = "embedding"
	StageStorage      Stage = "storage"
	StageIndexing     Stage = "indexing"

	// Terminal document statuses. Not stages a run visits one by one:
	// "completed" means every stage finished, "failed" freezes the run
	// at whichever stage broke.
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Order is the fixed execution order. A run never skips ahead and never
// revisits a completed stage.
var Order = []Stage{
	StageUploading,
	StageQueued,
	StageAnalysis,
	StagePartitioning,
	StageEnrichment,
	StageChunking,
	StageEmbedding,
	StageStorage,
	StageIndexing,
}

var stageIndex = func() map[Stage]int {
	m := make(map[Stage]int, len(Order))
	for i, s := range Order {
		m[s] = i
	}
	return m
}()

// Index returns the position of s in the pipeline order, or -1 for unknown
// or terminal identifiers.
func Index(s Stage) int {
	if i, ok := stageIndex[s]; ok {
		return i
	}
	return -1
}

// Describe returns the operator-facing description of a stage.
func Describe(s Stage) string {
	switch s {
	case StageUploading:
		return "Uploading file to secure cloud storage"
	case StageQueued:
		return "File queued for processing"
	case StageAnalysis:
		return "Analyzing document structure and metadata"
	case StagePartitioning:
		return "Processing and extracting text, images, and tables"
	case StageEnrichment:
		return "Enhancing images and tables with AI descriptions"
	case StageChunking:
		return "Creating semantic text chunks"
	case StageEmbedding:
		return "Generating vector embeddings"
	case StageStorage:
		return "Storing vectors in database"
	case StageIndexing:
		return "Building search indexes"
	default:
		return ""
	}
}

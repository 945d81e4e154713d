// Package ragconfig holds the per-project retrieval configuration and the
// pure cost model that previews a configuration's performance profile
// before it is applied.
package ragconfig

import "time"

// Strategy kinds.
const (
	StrategyBasic            = "basic"
	StrategyHybrid           = "hybrid"
	StrategyMultiQueryVector = "multi-query-vector"
	StrategyMultiQueryHybrid = "multi-query-hybrid"
)

// Documented knob ranges. Callers clamp before estimating; Estimate itself
// is total over its inputs.
const (
	MinChunksPerSearch = 5
	MaxChunksPerSearch = 50

	MinFinalContextSize = 3
	MaxFinalContextSize = 15

	MinSimilarityThreshold = 0.5
	MaxSimilarityThreshold = 0.95

	MinNumberOfQueries = 3
	MaxNumberOfQueries = 7

	MinVectorWeight = 0.1
	MaxVectorWeight = 0.9
)

// Reranking is the optional post-retrieval reorder step.
type Reranking struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model"`
}

// HybridSearch weights the vector and keyword halves of hybrid retrieval.
// KeywordWeight is always derived from VectorWeight; use SetVectorWeight.
type HybridSearch struct {
	VectorWeight  float64 `json:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight"`
}

// Settings is one project's retrieval configuration.
type Settings struct {
	ProjectID           string       `json:"project_id,omitempty"`
	EmbeddingModel      string       `json:"embedding_model"`
	RAGStrategy         string       `json:"rag_strategy"`
	ChunksPerSearch     int          `json:"chunks_per_search"`
	FinalContextSize    int          `json:"final_context_size"`
	SimilarityThreshold float64      `json:"similarity_threshold"`
	NumberOfQueries     int          `json:"number_of_queries"`
	Reranking           Reranking    `json:"reranking"`
	HybridSearch        HybridSearch `json:"hybrid_search"`
	CreatedAt           time.Time    `json:"created_at,omitempty"`
	UpdatedAt           time.Time    `json:"updated_at,omitempty"`
}

// Defaults returns the configuration a freshly created project starts with.
func Defaults() Settings {
	return Settings{
		EmbeddingModel:      "text-embedding-3-large",
		RAGStrategy:         StrategyBasic,
		ChunksPerSearch:     20,
		FinalContextSize:    5,
		SimilarityThreshold: 0.8,
		NumberOfQueries:     5,
		Reranking: Reranking{
			Enabled: false,
			Model:   "ms-marco-MiniLM-L-12-v2",
		},
		HybridSearch: HybridSearch{
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
		},
	}
}

// SetVectorWeight sets the vector weight and derives the keyword weight so
// the pair always sums to exactly 1.0. Input is clamped to the documented
// range first.
func (s *Settings) SetVectorWeight(w float64) {
	w = clampFloat(w, MinVectorWeight, MaxVectorWeight)
	s.HybridSearch.VectorWeight = w
	s.HybridSearch.KeywordWeight = 1 - w
}

// MultiQuery reports whether the number-of-queries knob applies to the
// configured strategy.
func (s *Settings) MultiQuery() bool {
	return s.RAGStrategy == StrategyMultiQueryVector || s.RAGStrategy == StrategyMultiQueryHybrid
}

// Clamp normalizes every numeric knob into its documented range, repairs an
// unknown strategy back to basic, and re-derives the keyword weight.
func (s *Settings) Clamp() {
	switch s.RAGStrategy {
	case StrategyBasic, StrategyHybrid, StrategyMultiQueryVector, StrategyMultiQueryHybrid:
	default:
		s.RAGStrategy = StrategyBasic
	}
	s.ChunksPerSearch = clampInt(s.ChunksPerSearch, MinChunksPerSearch, MaxChunksPerSearch)
	s.FinalContextSize = clampInt(s.FinalContextSize, MinFinalContextSize, MaxFinalContextSize)
	s.SimilarityThreshold = clampFloat(s.SimilarityThreshold, MinSimilarityThreshold, MaxSimilarityThreshold)
	s.NumberOfQueries = clampInt(s.NumberOfQueries, MinNumberOfQueries, MaxNumberOfQueries)
	s.SetVectorWeight(s.HybridSearch.VectorWeight)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

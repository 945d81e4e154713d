package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/ragconfig"
)

// SearchResult is one retrieved chunk with its fused relevance score.
type SearchResult struct {
	Chunk models.DocumentChunk `json:"chunk"`
	Score float64              `json:"score"`
}

// SearchService runs retrieval over a project's completed documents using
// the project's configured strategy.
type SearchService struct {
	db       core.DbClient
	kw       core.KeywordIndex
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	settings *SettingsService
}

func NewSearchService(db core.DbClient, kw core.KeywordIndex, embedder core.EmbeddingProvider, llm core.LLMProvider, settings *SettingsService) *SearchService {
	return &SearchService{db: db, kw: kw, embedder: embedder, llm: llm, settings: settings}
}

// Search retrieves up to FinalContextSize chunks for the query. Vector and
// keyword result lists are fused by weighted reciprocal rank so the two
// halves compose without comparable raw scores.
func (s *SearchService) Search(ctx context.Context, projectID, query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}
	cfg, err := s.settings.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	queries := []string{query}
	if cfg.MultiQuery() {
		variants, err := s.expandQuery(ctx, query, cfg.NumberOfQueries)
		if err != nil {
			return nil, err
		}
		queries = variants
	}

	hybrid := cfg.RAGStrategy == ragconfig.StrategyHybrid || cfg.RAGStrategy == ragconfig.StrategyMultiQueryHybrid

	scores := map[string]float64{}
	chunks := map[string]models.DocumentChunk{}

	for _, q := range queries {
		vecs, err := s.embedder.EmbedTexts(ctx, []string{q})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vecHits, err := s.db.SearchProjectChunks(ctx, projectID, vecs[0], cfg.ChunksPerSearch)
		if err != nil {
			return nil, err
		}
		vw := 1.0
		if hybrid {
			vw = cfg.HybridSearch.VectorWeight
		}
		for rank, c := range vecHits {
			scores[c.ID] += vw / float64(rank+1)
			chunks[c.ID] = c
		}

		if !hybrid {
			continue
		}
		kwHits, err := s.kw.Search(ctx, projectID, q, cfg.ChunksPerSearch)
		if err != nil {
			return nil, err
		}
		for rank, h := range kwHits {
			scores[h.ChunkID] += cfg.HybridSearch.KeywordWeight / float64(rank+1)
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		c, ok := chunks[id]
		if !ok {
			// Keyword-only hit: hydrate the chunk row.
			continue
		}
		results = append(results, SearchResult{Chunk: c, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID // stable order for ties
	})

	if len(results) > cfg.FinalContextSize {
		results = results[:cfg.FinalContextSize]
	}
	return results, nil
}

// expandQuery asks the LLM for n query reformulations, always keeping the
// original as the first variant. Without an LLM the original is used alone.
func (s *SearchService) expandQuery(ctx context.Context, query string, n int) ([]string, error) {
	if s.llm == nil || n <= 1 {
		return []string{query}, nil
	}
	const system = "You rewrite search queries. Return one reformulation per line, nothing else."
	prompt := fmt.Sprintf("Write %d different reformulations of this query:\n\n%s", n-1, query)

	out, err := s.llm.Generate(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}

	variants := []string{query}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(variants) < n {
			variants = append(variants, line)
		}
	}
	return variants, nil
}

package ragconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_BasicDefaults(t *testing.T) {
	s := Defaults()
	s.RAGStrategy = StrategyBasic
	s.ChunksPerSearch = 20
	s.NumberOfQueries = 5
	s.Reranking.Enabled = false

	m := Estimate(s)
	assert.Equal(t, Metrics{
		TotalChunks:        20,
		AfterDedupe:        20,
		EstimatedLatencyMs: 400,
		StrategyTier:       "Basic",
	}, m)
}

func TestEstimate_MultiQueryHybridWithReranking(t *testing.T) {
	s := Defaults()
	s.RAGStrategy = StrategyMultiQueryHybrid
	s.ChunksPerSearch = 20
	s.NumberOfQueries = 5
	s.Reranking.Enabled = true

	m := Estimate(s)
	assert.Equal(t, 100, m.TotalChunks)
	assert.Equal(t, 70, m.AfterDedupe)
	assert.Equal(t, 1000+5*300+200, m.EstimatedLatencyMs)
	assert.Equal(t, "Expert", m.StrategyTier)
}

func TestEstimate_Table(t *testing.T) {
	cases := []struct {
		name      string
		strategy  string
		chunks    int
		queries   int
		reranking bool
		want      Metrics
	}{
		{
			name: "hybrid", strategy: StrategyHybrid, chunks: 10, queries: 3,
			want: Metrics{TotalChunks: 10, AfterDedupe: 10, EstimatedLatencyMs: 600, StrategyTier: "Intermediate"},
		},
		{
			name: "hybrid with reranking", strategy: StrategyHybrid, chunks: 10, queries: 3, reranking: true,
			want: Metrics{TotalChunks: 10, AfterDedupe: 10, EstimatedLatencyMs: 800, StrategyTier: "Intermediate"},
		},
		{
			name: "multi-query-vector", strategy: StrategyMultiQueryVector, chunks: 15, queries: 4,
			want: Metrics{TotalChunks: 60, AfterDedupe: 42, EstimatedLatencyMs: 800 + 4*200, StrategyTier: "Advanced"},
		},
		{
			name: "basic with reranking", strategy: StrategyBasic, chunks: 5, queries: 7, reranking: true,
			want: Metrics{TotalChunks: 5, AfterDedupe: 5, EstimatedLatencyMs: 600, StrategyTier: "Basic"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Defaults()
			s.RAGStrategy = tc.strategy
			s.ChunksPerSearch = tc.chunks
			s.NumberOfQueries = tc.queries
			s.Reranking.Enabled = tc.reranking
			assert.Equal(t, tc.want, Estimate(s))
		})
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	s := Defaults()
	s.RAGStrategy = StrategyMultiQueryVector
	s.ChunksPerSearch = 33
	s.NumberOfQueries = 6
	s.Reranking.Enabled = true

	first := Estimate(s)
	for range 10 {
		assert.Equal(t, first, Estimate(s))
	}
}

func TestEstimate_DedupeNeverExceedsTotal(t *testing.T) {
	for chunks := MinChunksPerSearch; chunks <= MaxChunksPerSearch; chunks++ {
		for queries := MinNumberOfQueries; queries <= MaxNumberOfQueries; queries++ {
			s := Defaults()
			s.RAGStrategy = StrategyMultiQueryHybrid
			s.ChunksPerSearch = chunks
			s.NumberOfQueries = queries
			m := Estimate(s)
			assert.LessOrEqual(t, m.AfterDedupe, m.TotalChunks)
			assert.Equal(t, chunks*queries, m.TotalChunks)
		}
	}
}

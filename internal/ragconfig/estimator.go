package ragconfig

// Metrics is the derived performance preview for a configuration.
type Metrics struct {
	TotalChunks        int    `json:"total_chunks"`
	AfterDedupe        int    `json:"after_dedupe"`
	EstimatedLatencyMs int    `json:"estimated_latency_ms"`
	StrategyTier       string `json:"strategy_tier"`
}

// Estimate maps a retrieval configuration to its expected chunk volume,
// post-dedupe volume, latency and complexity tier. Pure and total: no I/O,
// no error paths, identical input gives identical output.
func Estimate(s Settings) Metrics {
	totalChunks := s.ChunksPerSearch
	afterDedupe := s.ChunksPerSearch
	latency := 400 // base latency
	tier := "Basic"

	switch s.RAGStrategy {
	case StrategyBasic:
		tier = "Basic"
	case StrategyHybrid:
		latency = 600
		tier = "Intermediate"
	case StrategyMultiQueryVector:
		totalChunks = s.ChunksPerSearch * s.NumberOfQueries
		afterDedupe = totalChunks * 7 / 10 // assume 70% unique
		latency = 800 + s.NumberOfQueries*200
		tier = "Advanced"
	case StrategyMultiQueryHybrid:
		totalChunks = s.ChunksPerSearch * s.NumberOfQueries
		afterDedupe = totalChunks * 7 / 10
		latency = 1000 + s.NumberOfQueries*300
		tier = "Expert"
	}

	if s.Reranking.Enabled {
		latency += 200
	}

	return Metrics{
		TotalChunks:        totalChunks,
		AfterDedupe:        afterDedupe,
		EstimatedLatencyMs: latency,
		StrategyTier:       tier,
	}
}

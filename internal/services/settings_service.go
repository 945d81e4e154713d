package services

import (
	"context"
	"fmt"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/ragconfig"
)

type SettingsService struct {
	db core.DbClient
}

func NewSettingsService(db core.DbClient) *SettingsService {
	return &SettingsService{db: db}
}

// Get returns the project's retrieval settings, falling back to the defaults
// when the project has never saved any.
func (s *SettingsService) Get(ctx context.Context, projectID string) (ragconfig.Settings, error) {
	stored, err := s.db.GetSettings(ctx, projectID)
	if err != nil {
		return ragconfig.Settings{}, err
	}
	if stored == nil {
		d := ragconfig.Defaults()
		d.ProjectID = projectID
		return d, nil
	}
	return *stored, nil
}

// Update normalizes and persists new settings, returning the saved settings
// with their performance preview. The embedding model cannot change once the
// project holds documents; stored vectors would no longer match queries.
func (s *SettingsService) Update(ctx context.Context, projectID string, in ragconfig.Settings) (ragconfig.Settings, ragconfig.Metrics, error) {
	current, err := s.Get(ctx, projectID)
	if err != nil {
		return ragconfig.Settings{}, ragconfig.Metrics{}, err
	}

	if in.EmbeddingModel != "" && in.EmbeddingModel != current.EmbeddingModel {
		n, err := s.db.CountDocumentsByProject(ctx, projectID)
		if err != nil {
			return ragconfig.Settings{}, ragconfig.Metrics{}, err
		}
		if n > 0 {
			return ragconfig.Settings{}, ragconfig.Metrics{}, fmt.Errorf("%w: project %s has %d documents", ErrEmbeddingModelLocked, projectID, n)
		}
		current.EmbeddingModel = in.EmbeddingModel
	}

	current.RAGStrategy = in.RAGStrategy
	current.ChunksPerSearch = in.ChunksPerSearch
	current.FinalContextSize = in.FinalContextSize
	current.SimilarityThreshold = in.SimilarityThreshold
	current.NumberOfQueries = in.NumberOfQueries
	current.Reranking = in.Reranking
	current.SetVectorWeight(in.HybridSearch.VectorWeight)
	current.Clamp()
	current.ProjectID = projectID

	if err := s.db.UpsertSettings(ctx, projectID, current); err != nil {
		return ragconfig.Settings{}, ragconfig.Metrics{}, err
	}
	return current, ragconfig.Estimate(current), nil
}

// Preview estimates a candidate configuration's performance without saving
// it. The candidate is clamped first so out-of-range knobs preview the same
// values an Update would persist.
func (s *SettingsService) Preview(in ragconfig.Settings) (ragconfig.Settings, ragconfig.Metrics) {
	in.Clamp()
	return in, ragconfig.Estimate(in)
}

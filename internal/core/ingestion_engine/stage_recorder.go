package ingestion_engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/pipeline"
)

// stageRecorder mirrors every in-memory run transition to the database so
// pollers observe the same sequence the run enforces. Persistence errors on
// progress updates are logged and swallowed; a lost progress tick is harmless,
// a lost stage transition is not.
type stageRecorder struct {
	db    core.DbClient
	run   *pipeline.Run
	docID string
	log   *zap.Logger
}

func (r *stageRecorder) begin(ctx context.Context, stage pipeline.Stage) error {
	if err := r.run.Begin(stage); err != nil {
		return err
	}
	now := time.Now()
	if err := r.db.UpsertStageState(ctx, models.StageState{
		DocumentID: r.docID,
		Stage:      string(stage),
		Status:     string(pipeline.StateProcessing),
		StartedAt:  &now,
	}); err != nil {
		return err
	}
	return r.db.UpdateDocumentStatus(ctx, r.docID, r.run.Status(), r.run.OverallProgress())
}

func (r *stageRecorder) complete(ctx context.Context, stage pipeline.Stage) error {
	if err := r.run.Complete(stage); err != nil {
		return err
	}
	now := time.Now()
	if err := r.db.UpsertStageState(ctx, models.StageState{
		DocumentID:  r.docID,
		Stage:       string(stage),
		Status:      string(pipeline.StateCompleted),
		CompletedAt: &now,
	}); err != nil {
		return err
	}
	return r.db.UpdateDocumentStatus(ctx, r.docID, r.run.Status(), r.run.OverallProgress())
}

// fail marks the active (or next) stage failed and the document with it.
// Stages after the failure point keep their pending rows untouched.
func (r *stageRecorder) fail(ctx context.Context, cause error) {
	stage := r.run.Current()
	if err := r.run.Fail(cause); err != nil {
		r.log.Error("mark run failed", zap.String("document_id", r.docID), zap.Error(err))
	}
	if err := r.db.UpsertStageState(ctx, models.StageState{
		DocumentID: r.docID,
		Stage:      string(stage),
		Status:     string(pipeline.StateFailed),
	}); err != nil {
		r.log.Error("persist failed stage", zap.String("document_id", r.docID), zap.Error(err))
	}
	if err := r.db.UpdateDocumentStatus(ctx, r.docID, r.run.Status(), r.run.OverallProgress()); err != nil {
		r.log.Error("persist failed status", zap.String("document_id", r.docID), zap.Error(err))
	}
}

func (r *stageRecorder) progress(ctx context.Context, pct int) {
	r.run.SetProgress(pct)
	if err := r.db.UpdateDocumentStatus(ctx, r.docID, r.run.Status(), r.run.OverallProgress()); err != nil {
		r.log.Warn("persist progress", zap.String("document_id", r.docID), zap.Error(err))
	}
}

package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/pipeline"
)

// MaxFileSize is the hard per-file upload limit (50 MiB).
const MaxFileSize = 50 << 20

// PresignTTL bounds how long a registration's upload URL stays valid.
const PresignTTL = 15 * time.Minute

// allowedContentTypes maps accepted MIME types to a canonical extension.
var allowedContentTypes = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"text/plain":    ".txt",
	"text/markdown": ".md",
}

// ValidateEnvelope checks a file's declared name, size and content type
// against the upload policy before any network or storage work happens.
func ValidateEnvelope(filename string, size int64, contentType string) error {
	if size <= 0 || size > MaxFileSize {
		return fmt.Errorf("%w: %q is %d bytes (limit %d)", ErrFileTooLarge, filename, size, MaxFileSize)
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return fmt.Errorf("%w: %q (%s)", ErrUnsupportedType, filename, contentType)
	}
	return nil
}

// Enqueuer is the slice of the ingestion engine the document service needs:
// scheduling a confirmed document for background processing.
type Enqueuer interface {
	Enqueue(docID string)
}

type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	kw       core.KeywordIndex
	ingestor Enqueuer
	bucket   string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, kw core.KeywordIndex, ingestor Enqueuer, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, kw: kw, ingestor: ingestor, bucket: bucket}
}

// RegisterUpload reserves a document slot and hands back a presigned PUT URL.
// The document starts in the "uploading" stage; nothing is processed until
// the client confirms the transfer.
func (s *DocumentService) RegisterUpload(ctx context.Context, userID, projectID, filename string, size int64, contentType string) (*models.Document, string, error) {
	if err := ValidateEnvelope(filename, size, contentType); err != nil {
		return nil, "", err
	}
	project, err := s.db.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	if project == nil {
		return nil, "", fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	docID := uuid.NewString()
	key := s.objectKey(projectID, docID, filename)

	uploadURL, err := s.storage.PresignPutURL(ctx, s.bucket, key, contentType, PresignTTL)
	if err != nil {
		return nil, "", fmt.Errorf("presign upload: %w", err)
	}

	doc := &models.Document{
		ID:          docID,
		ProjectID:   projectID,
		UserID:      userID,
		FileName:    filename,
		FileSize:    size,
		ContentType: contentType,
		StorageKey:  key,
		Status:      string(pipeline.StageUploading),
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, "", err
	}

	// Seed every stage row up front so pollers always see the full sequence.
	now := time.Now()
	for _, st := range pipeline.Order {
		state := models.StageState{DocumentID: docID, Stage: string(st), Status: string(pipeline.StatePending)}
		if st == pipeline.StageUploading {
			state.Status = string(pipeline.StateProcessing)
			state.StartedAt = &now
		}
		if err := s.db.UpsertStageState(ctx, state); err != nil {
			return nil, "", err
		}
	}
	return doc, uploadURL, nil
}

// ConfirmUpload moves a document from "uploading" to "queued" and schedules
// it for ingestion. Confirming anything not in the uploading phase is a
// conflict, so retried confirmations stay harmless.
func (s *DocumentService) ConfirmUpload(ctx context.Context, docID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, docID)
	}
	if doc.Status != string(pipeline.StageUploading) {
		return nil, fmt.Errorf("%w: document %s is %q", ErrConflict, docID, doc.Status)
	}

	// The object must actually be there before we queue work against it.
	rc, err := s.storage.GetObjectReader(ctx, s.bucket, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("uploaded object not found: %w", err)
	}
	rc.Close()

	now := time.Now()
	if err := s.db.UpsertStageState(ctx, models.StageState{
		DocumentID: docID, Stage: string(pipeline.StageUploading),
		Status: string(pipeline.StateCompleted), CompletedAt: &now,
	}); err != nil {
		return nil, err
	}
	if err := s.db.UpsertStageState(ctx, models.StageState{
		DocumentID: docID, Stage: string(pipeline.StageQueued),
		Status: string(pipeline.StateProcessing), StartedAt: &now,
	}); err != nil {
		return nil, err
	}

	progress := 100 / len(pipeline.Order) // one stage down
	if err := s.db.UpdateDocumentStatus(ctx, docID, string(pipeline.StageQueued), progress); err != nil {
		return nil, err
	}
	s.ingestor.Enqueue(docID)

	doc.Status = string(pipeline.StageQueued)
	doc.ProgressPct = progress
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return doc, nil
}

func (s *DocumentService) ListByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	return s.db.ListDocumentsByProject(ctx, projectID)
}

// Status assembles the polling payload: the document row, per-stage states in
// pipeline order, and run counters.
func (s *DocumentService) Status(ctx context.Context, docID string) (*models.DocumentStatus, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	stages, err := s.db.ListStageStates(ctx, docID)
	if err != nil {
		return nil, err
	}
	metrics, err := s.db.GetDocumentMetrics(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &models.DocumentStatus{Document: *doc, Stages: stages, Metrics: metrics}, nil
}

// Chunks returns the stored chunks for a fully processed document. While the
// pipeline is live (or after a failure) it returns ErrNotReady so callers can
// distinguish "not yet" from "nothing there".
func (s *DocumentService) Chunks(ctx context.Context, docID string) ([]models.DocumentChunk, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != pipeline.StatusCompleted {
		return nil, fmt.Errorf("%w: document %s is %q", ErrNotReady, docID, doc.Status)
	}
	return s.db.GetChunksByDocument(ctx, docID)
}

// Delete removes the document everywhere it lives: chunk rows, keyword index
// entries, the stored object, then the document row itself (stage states
// cascade with it).
func (s *DocumentService) Delete(ctx context.Context, docID string) error {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return err
	}
	if err := s.db.DeleteChunksByDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.kw.DeleteDocument(ctx, doc.ProjectID, docID); err != nil {
		return err
	}
	if doc.StorageKey != "" {
		if err := s.storage.DeleteFile(ctx, s.bucket, doc.StorageKey); err != nil {
			return err
		}
	}
	return s.db.DeleteDocument(ctx, docID)
}

// objectKey creates a consistent storage key layout.
func (s *DocumentService) objectKey(projectID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("projects", projectID, "documents", docID, filename)
}

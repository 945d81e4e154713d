package core

import (
	"context"
	"io"
	"time"

	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/ragconfig"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateProject(ctx context.Context, p *models.Project) error
	GetProjectByID(ctx context.Context, id string) (*models.Project, error)
	ListProjectsByUser(ctx context.Context, userID string) ([]models.Project, error)
	DeleteProject(ctx context.Context, id string) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByStorageKey(ctx context.Context, projectID, storageKey string) (*models.Document, error)
	ListDocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error)
	CountDocumentsByProject(ctx context.Context, projectID string) (int, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string, progressPct int) error
	UpdateDocumentMetrics(ctx context.Context, id string, m models.RunMetrics) error
	GetDocumentMetrics(ctx context.Context, id string) (models.RunMetrics, error)
	DeleteDocument(ctx context.Context, id string) error

	UpsertStageState(ctx context.Context, st models.StageState) error
	ListStageStates(ctx context.Context, documentID string) ([]models.StageState, error)

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	SearchProjectChunks(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	GetSettings(ctx context.Context, projectID string) (*ragconfig.Settings, error)
	UpsertSettings(ctx context.Context, projectID string, s ragconfig.Settings) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// Abstract so AWS can be swapped for MinIO, GCP, etc.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// PresignPutURL returns a time-limited URL the client PUTs the raw file
	// bytes to. This is the upload target handed out at registration.
	PresignPutURL(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error)
}

// KeywordHit is one lexical match from the keyword index.
type KeywordHit struct {
	ChunkID string
	Score   float64
}

// KeywordIndex is the lexical half of hybrid search, fed by the pipeline's
// indexing stage.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, projectID string, chunks []models.DocumentChunk) error
	DeleteDocument(ctx context.Context, projectID, documentID string) error
	Search(ctx context.Context, projectID, query string, limit int) ([]KeywordHit, error)
	Close() error
}

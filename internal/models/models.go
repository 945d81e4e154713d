package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Project groups documents and retrieval settings under one knowledge base.
type Project struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded file and its position in the ingestion
// pipeline. StorageKey is empty only while the document is still in the
// "uploading" phase; from "queued" onward it always points at the stored object.
type Document struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"project_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	FileSize    int64     `db:"file_size" json:"file_size"`
	ContentType string    `db:"content_type" json:"content_type"`
	StorageKey  string    `db:"storage_key" json:"storage_key"`
	Status      string    `db:"status" json:"status"` // pipeline stage name, or completed | failed
	ProgressPct int       `db:"progress_pct" json:"progress_pct"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// RunMetrics accumulates per-run counters reported alongside stage status.
type RunMetrics struct {
	PagesProcessed  int   `db:"pages_processed" json:"pages_processed"`
	ChunksCreated   int   `db:"chunks_created" json:"chunks_created"`
	ImagesFound     int   `db:"images_found" json:"images_found"`
	TablesExtracted int   `db:"tables_extracted" json:"tables_extracted"`
	ProcessingMs    int64 `db:"processing_ms" json:"processing_ms"`
}

// Chunk kinds produced by the partitioning stage.
const (
	ChunkTypeText  = "text"
	ChunkTypeImage = "image"
	ChunkTypeTable = "table"
)

// DocumentChunk represents one retrievable unit from a document. For image
// and table chunks, Content holds the AI-generated description and CharCount
// is zero.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Type       string    `db:"chunk_type" json:"type"`
	Content    string    `db:"content" json:"content"`
	Page       int       `db:"page" json:"page"`
	Position   int       `db:"position" json:"position"`
	CharCount  int       `db:"char_count" json:"char_count"`
	TokenCount int       `db:"token_count" json:"token_count"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StageState is the persisted record of one pipeline stage for one document.
type StageState struct {
	DocumentID  string     `db:"document_id" json:"document_id"`
	Stage       string     `db:"stage" json:"stage"`
	Status      string     `db:"status" json:"status"` // pending | processing | completed | failed
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// DocumentStatus is the polling payload for one document: the document row,
// its per-stage states in pipeline order, and the run counters so far.
type DocumentStatus struct {
	Document Document     `json:"document"`
	Stages   []StageState `json:"stages"`
	Metrics  RunMetrics   `json:"metrics"`
}

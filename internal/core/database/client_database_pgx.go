package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ragstack/corpora/internal/config"
	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/pipeline"
	"github.com/ragstack/corpora/internal/ragconfig"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Projects

func (c *DatabaseClient) CreateProject(ctx context.Context, p *models.Project) error {
	if p == nil {
		return errors.New("nil project")
	}
	const q = `
		INSERT INTO projects (id, user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, p.ID, p.UserID, p.Name, p.Description)
	return err
}

func (c *DatabaseClient) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	const q = `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM projects WHERE id = $1
	`
	var p models.Project
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *DatabaseClient) ListProjectsByUser(ctx context.Context, userID string) ([]models.Project, error) {
	const q = `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM projects
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteProject(ctx context.Context, id string) error {
	// Documents, stages, chunks and settings cascade.
	_, err := c.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, project_id, user_id, file_name, file_size, content_type, storage_key, status, progress_pct, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.ProjectID, doc.UserID, doc.FileName, doc.FileSize, doc.ContentType,
		doc.StorageKey, doc.Status, doc.ProgressPct)
	return err
}

const documentColumns = `
	id, project_id, user_id, file_name, file_size, content_type, storage_key, status, progress_pct, created_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.ProjectID, &d.UserID, &d.FileName, &d.FileSize, &d.ContentType,
		&d.StorageKey, &d.Status, &d.ProgressPct, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) GetDocumentByStorageKey(ctx context.Context, projectID, storageKey string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE project_id = $1 AND storage_key = $2`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, projectID, storageKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) ListDocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountDocumentsByProject(ctx context.Context, projectID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE project_id = $1`, projectID).Scan(&n)
	return n, err
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string, progressPct int) error {
	const q = `
		UPDATE documents
		SET status = $2, progress_pct = GREATEST(progress_pct, $3), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, progressPct)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) UpdateDocumentMetrics(ctx context.Context, id string, m models.RunMetrics) error {
	const q = `
		UPDATE documents
		SET pages_processed = $2, chunks_created = $3, images_found = $4,
		    tables_extracted = $5, processing_ms = $6, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id,
		m.PagesProcessed, m.ChunksCreated, m.ImagesFound, m.TablesExtracted, m.ProcessingMs)
	return err
}

func (c *DatabaseClient) GetDocumentMetrics(ctx context.Context, id string) (models.RunMetrics, error) {
	const q = `
		SELECT pages_processed, chunks_created, images_found, tables_extracted, processing_ms
		FROM documents WHERE id = $1
	`
	var m models.RunMetrics
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&m.PagesProcessed, &m.ChunksCreated, &m.ImagesFound, &m.TablesExtracted, &m.ProcessingMs,
	)
	if err == sql.ErrNoRows {
		return models.RunMetrics{}, nil
	}
	return m, err
}

// DeleteDocument removes the row; stage states and chunks cascade. Deleting
// by primary key is atomic with respect to concurrent status updates, so a
// racing poll cannot resurrect the document.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// Stage states

func (c *DatabaseClient) UpsertStageState(ctx context.Context, st models.StageState) error {
	const q = `
		INSERT INTO document_stages (document_id, stage, status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, stage)
		DO UPDATE SET status = EXCLUDED.status,
		              started_at = COALESCE(document_stages.started_at, EXCLUDED.started_at),
		              completed_at = EXCLUDED.completed_at
	`
	_, err := c.db.ExecContext(ctx, q, st.DocumentID, st.Stage, st.Status, st.StartedAt, st.CompletedAt)
	return err
}

func (c *DatabaseClient) ListStageStates(ctx context.Context, documentID string) ([]models.StageState, error) {
	const q = `
		SELECT document_id, stage, status, started_at, completed_at
		FROM document_stages
		WHERE document_id = $1
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StageState
	for rows.Next() {
		var st models.StageState
		if err := rows.Scan(&st.DocumentID, &st.Stage, &st.Status, &st.StartedAt, &st.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Pollers expect pipeline order, not insertion order.
	sort.Slice(out, func(i, j int) bool {
		return pipeline.Index(pipeline.Stage(out[i].Stage)) < pipeline.Index(pipeline.Stage(out[j].Stage))
	})
	return out, nil
}

// Chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_type, content, page, position, char_count, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Type, ch.Content, ch.Page, ch.Position,
			ch.CharCount, ch.TokenCount, vec,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunk_type, content, page, position, char_count, token_count, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.Type, &ch.Content, &ch.Page, &ch.Position,
			&ch.CharCount, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

// SearchProjectChunks finds top-k similar chunks across a project's completed
// documents for a query embedding.
func (c *DatabaseClient) SearchProjectChunks(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT ch.id, ch.document_id, ch.chunk_type, ch.content, ch.page, ch.position,
		       ch.char_count, ch.token_count, ch.embedding
		FROM document_chunks ch
		JOIN documents d ON d.id = ch.document_id
		WHERE d.project_id = $1 AND d.status = 'completed'
		ORDER BY ch.embedding <-> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, projectID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Type, &ch.Content, &ch.Page, &ch.Position,
			&ch.CharCount, &ch.TokenCount, &emb); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Settings

func (c *DatabaseClient) GetSettings(ctx context.Context, projectID string) (*ragconfig.Settings, error) {
	const q = `
		SELECT project_id, embedding_model, rag_strategy, chunks_per_search, final_context_size,
		       similarity_threshold, number_of_queries, reranking_enabled, reranking_model,
		       vector_weight, keyword_weight, created_at, updated_at
		FROM project_settings WHERE project_id = $1
	`
	var s ragconfig.Settings
	err := c.db.QueryRowContext(ctx, q, projectID).Scan(
		&s.ProjectID, &s.EmbeddingModel, &s.RAGStrategy, &s.ChunksPerSearch, &s.FinalContextSize,
		&s.SimilarityThreshold, &s.NumberOfQueries, &s.Reranking.Enabled, &s.Reranking.Model,
		&s.HybridSearch.VectorWeight, &s.HybridSearch.KeywordWeight, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) UpsertSettings(ctx context.Context, projectID string, s ragconfig.Settings) error {
	const q = `
		INSERT INTO project_settings
			(project_id, embedding_model, rag_strategy, chunks_per_search, final_context_size,
			 similarity_threshold, number_of_queries, reranking_enabled, reranking_model,
			 vector_weight, keyword_weight, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (project_id)
		DO UPDATE SET embedding_model = EXCLUDED.embedding_model,
		              rag_strategy = EXCLUDED.rag_strategy,
		              chunks_per_search = EXCLUDED.chunks_per_search,
		              final_context_size = EXCLUDED.final_context_size,
		              similarity_threshold = EXCLUDED.similarity_threshold,
		              number_of_queries = EXCLUDED.number_of_queries,
		              reranking_enabled = EXCLUDED.reranking_enabled,
		              reranking_model = EXCLUDED.reranking_model,
		              vector_weight = EXCLUDED.vector_weight,
		              keyword_weight = EXCLUDED.keyword_weight,
		              updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q, projectID,
		s.EmbeddingModel, s.RAGStrategy, s.ChunksPerSearch, s.FinalContextSize,
		s.SimilarityThreshold, s.NumberOfQueries, s.Reranking.Enabled, s.Reranking.Model,
		s.HybridSearch.VectorWeight, s.HybridSearch.KeywordWeight)
	return err
}

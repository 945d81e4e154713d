package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/pipeline"
	"github.com/ragstack/corpora/internal/ragconfig"
)

// stageEvent is one recorded transition: "analysis/processing" etc.
type stageEvent string

// engineDB records everything the pipeline persists.
type engineDB struct {
	mu       sync.Mutex
	doc      *models.Document
	events   []stageEvent
	statuses []string
	chunks   []models.DocumentChunk
	metrics  models.RunMetrics
}

func (d *engineDB) CreateUser(ctx context.Context, u *models.User) error { return nil }
func (d *engineDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}
func (d *engineDB) CreateProject(ctx context.Context, p *models.Project) error { return nil }
func (d *engineDB) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	return nil, nil
}
func (d *engineDB) ListProjectsByUser(ctx context.Context, userID string) ([]models.Project, error) {
	return nil, nil
}
func (d *engineDB) DeleteProject(ctx context.Context, id string) error { return nil }
func (d *engineDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	return nil
}

func (d *engineDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc != nil && d.doc.ID == id {
		cp := *d.doc
		return &cp, nil
	}
	return nil, nil
}

func (d *engineDB) GetDocumentByStorageKey(ctx context.Context, projectID, storageKey string) (*models.Document, error) {
	return nil, nil
}
func (d *engineDB) ListDocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	return nil, nil
}
func (d *engineDB) CountDocumentsByProject(ctx context.Context, projectID string) (int, error) {
	return 0, nil
}

func (d *engineDB) UpdateDocumentStatus(ctx context.Context, id string, status string, progressPct int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Status = status
	if progressPct > d.doc.ProgressPct {
		d.doc.ProgressPct = progressPct
	}
	d.statuses = append(d.statuses, status)
	return nil
}

func (d *engineDB) UpdateDocumentMetrics(ctx context.Context, id string, m models.RunMetrics) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metrics = m
	return nil
}

func (d *engineDB) GetDocumentMetrics(ctx context.Context, id string) (models.RunMetrics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metrics, nil
}

func (d *engineDB) DeleteDocument(ctx context.Context, id string) error { return nil }

func (d *engineDB) UpsertStageState(ctx context.Context, st models.StageState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, stageEvent(st.Stage+"/"+st.Status))
	return nil
}

func (d *engineDB) ListStageStates(ctx context.Context, documentID string) ([]models.StageState, error) {
	return nil, nil
}

func (d *engineDB) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks = append(d.chunks, chunks...)
	return nil
}

func (d *engineDB) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	return nil, nil
}
func (d *engineDB) DeleteChunksByDocument(ctx context.Context, documentID string) error { return nil }
func (d *engineDB) SearchProjectChunks(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	return nil, nil
}
func (d *engineDB) GetSettings(ctx context.Context, projectID string) (*ragconfig.Settings, error) {
	return nil, nil
}
func (d *engineDB) UpsertSettings(ctx context.Context, projectID string, s ragconfig.Settings) error {
	return nil
}
func (d *engineDB) Close() error { return nil }

var _ core.DbClient = (*engineDB)(nil)

type engineStorage struct {
	data []byte
}

func (s *engineStorage) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	return "", nil
}
func (s *engineStorage) DeleteFile(ctx context.Context, bucket, key string) error { return nil }
func (s *engineStorage) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return s.data, nil
}
func (s *engineStorage) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s.data))), nil
}
func (s *engineStorage) PresignPutURL(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error) {
	return "", nil
}

type engineEmbedder struct {
	fail bool
}

func (e *engineEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("embedding quota exhausted")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type engineLLM struct {
	calls int
}

func (l *engineLLM) Generate(ctx context.Context, system, user string) (string, error) {
	l.calls++
	return fmt.Sprintf("description %d", l.calls), nil
}

type rawExtractor struct{}

func (rawExtractor) Extract(ctx context.Context, data []byte, contentType string) (*core.ExtractResult, error) {
	return &core.ExtractResult{Text: string(data)}, nil
}

type engineIndex struct {
	mu      sync.Mutex
	indexed []models.DocumentChunk
}

func (k *engineIndex) IndexChunks(ctx context.Context, projectID string, chunks []models.DocumentChunk) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.indexed = append(k.indexed, chunks...)
	return nil
}
func (k *engineIndex) DeleteDocument(ctx context.Context, projectID, documentID string) error {
	return nil
}
func (k *engineIndex) Search(ctx context.Context, projectID, query string, limit int) ([]core.KeywordHit, error) {
	return nil, nil
}
func (k *engineIndex) Close() error { return nil }

const sampleDoc = `The annual report covers three business units.

![revenue chart](fig1.png)

Region | Revenue | Growth
North | 100 | 5%
South | 80 | 9%

Each unit expanded headcount during the year.`

func newTestIngestor(db *engineDB, emb *engineEmbedder, llm *engineLLM, kw *engineIndex) *DocumentIngestor {
	cfg := &IngestConfig{
		TargetTokens:     40,
		OverlapTokens:    0,
		BatchSize:        2,
		PageCharEstimate: 2000,
		EnableEnrichment: true,
		Bucket:           "test-bucket",
	}
	return NewDocumentIngestor(db, &engineStorage{data: []byte(sampleDoc)},
		emb, llm, rawExtractor{}, kw, cfg, zap.NewNop())
}

func queuedDoc() *models.Document {
	return &models.Document{
		ID: "doc-1", ProjectID: "proj-1", StorageKey: "k", ContentType: "text/plain",
		Status: string(pipeline.StageQueued), ProgressPct: 11,
	}
}

func TestProcessOne_HappyPathRunsEveryStageInOrder(t *testing.T) {
	db := &engineDB{doc: queuedDoc()}
	llm := &engineLLM{}
	kw := &engineIndex{}
	ing := newTestIngestor(db, &engineEmbedder{}, llm, kw)

	require.NoError(t, ing.ProcessOne(context.Background(), "doc-1"))

	assert.Equal(t, pipeline.StatusCompleted, db.doc.Status)
	assert.Equal(t, 100, db.doc.ProgressPct)

	// Stage transitions arrive strictly in pipeline order, each stage
	// processing before completed, starting with the queued handoff.
	var want []stageEvent
	want = append(want, "queued/completed")
	for _, st := range pipeline.Order[2:] {
		want = append(want, stageEvent(string(st)+"/processing"), stageEvent(string(st)+"/completed"))
	}
	assert.Equal(t, want, db.events)

	// Image and table partitions were enriched and stored as typed chunks.
	assert.Equal(t, 2, llm.calls)
	var images, tables int
	for _, c := range db.chunks {
		switch c.Type {
		case models.ChunkTypeImage:
			images++
			assert.Contains(t, c.Content, "description")
		case models.ChunkTypeTable:
			tables++
		}
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "doc-1", c.DocumentID)
	}
	assert.Equal(t, 1, images)
	assert.Equal(t, 1, tables)

	// Every stored chunk reached the keyword index.
	assert.Len(t, kw.indexed, len(db.chunks))

	// Text chunks carry embeddings; positions are dense from zero.
	for i, c := range db.chunks {
		assert.Equal(t, i, c.Position)
	}

	assert.Equal(t, 1, db.metrics.ImagesFound)
	assert.Equal(t, 1, db.metrics.TablesExtracted)
	assert.Equal(t, len(db.chunks), db.metrics.ChunksCreated)
	assert.GreaterOrEqual(t, db.metrics.PagesProcessed, 1)
}

func TestProcessOne_EmbeddingFailureStopsTheRun(t *testing.T) {
	db := &engineDB{doc: queuedDoc()}
	kw := &engineIndex{}
	ing := newTestIngestor(db, &engineEmbedder{fail: true}, &engineLLM{}, kw)

	err := ing.ProcessOne(context.Background(), "doc-1")
	require.Error(t, err)

	assert.Equal(t, pipeline.StatusFailed, db.doc.Status)
	assert.Contains(t, db.events, stageEvent("embedding/failed"))

	// Storage and indexing never ran.
	for _, ev := range db.events {
		assert.NotContains(t, string(ev), string(pipeline.StageStorage)+"/")
		assert.NotContains(t, string(ev), string(pipeline.StageIndexing)+"/")
	}
	assert.Empty(t, db.chunks)
	assert.Empty(t, kw.indexed)
}

func TestProcessOne_UnknownDocument(t *testing.T) {
	db := &engineDB{}
	ing := newTestIngestor(db, &engineEmbedder{}, &engineLLM{}, &engineIndex{})

	err := ing.ProcessOne(context.Background(), "ghost")
	require.Error(t, err)
	assert.Empty(t, db.events)
}

func TestWorkerPool_ProcessesEnqueuedDocuments(t *testing.T) {
	db := &engineDB{doc: queuedDoc()}
	ing := newTestIngestor(db, &engineEmbedder{}, &engineLLM{}, &engineIndex{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ing.Start(ctx, 2)
	ing.Enqueue("doc-1")

	require.Eventually(t, func() bool {
		db.mu.Lock()
		defer db.mu.Unlock()
		return db.doc.Status == pipeline.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

package services

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/pipeline"
	"github.com/ragstack/corpora/internal/ragconfig"
)

// memDB is an in-memory core.DbClient for service tests.
type memDB struct {
	mu       sync.Mutex
	projects map[string]*models.Project
	docs     map[string]*models.Document
	stages   map[string]map[string]models.StageState // docID -> stage -> state
	chunks   map[string][]models.DocumentChunk
	settings map[string]*ragconfig.Settings
}

func newMemDB() *memDB {
	return &memDB{
		projects: map[string]*models.Project{},
		docs:     map[string]*models.Document{},
		stages:   map[string]map[string]models.StageState{},
		chunks:   map[string][]models.DocumentChunk{},
		settings: map[string]*ragconfig.Settings{},
	}
}

func (m *memDB) CreateUser(ctx context.Context, u *models.User) error { return nil }
func (m *memDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}

func (m *memDB) CreateProject(ctx context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *memDB) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projects[id], nil
}

func (m *memDB) ListProjectsByUser(ctx context.Context, userID string) ([]models.Project, error) {
	return nil, nil
}

func (m *memDB) DeleteProject(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	return nil
}

func (m *memDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *memDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) GetDocumentByStorageKey(ctx context.Context, projectID, storageKey string) (*models.Document, error) {
	return nil, nil
}

func (m *memDB) ListDocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memDB) CountDocumentsByProject(ctx context.Context, projectID string) (int, error) {
	docs, _ := m.ListDocumentsByProject(ctx, projectID)
	return len(docs), nil
}

func (m *memDB) UpdateDocumentStatus(ctx context.Context, id string, status string, progressPct int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		d.Status = status
		if progressPct > d.ProgressPct {
			d.ProgressPct = progressPct
		}
	}
	return nil
}

func (m *memDB) UpdateDocumentMetrics(ctx context.Context, id string, mt models.RunMetrics) error {
	return nil
}

func (m *memDB) GetDocumentMetrics(ctx context.Context, id string) (models.RunMetrics, error) {
	return models.RunMetrics{}, nil
}

func (m *memDB) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	delete(m.stages, id)
	return nil
}

func (m *memDB) UpsertStageState(ctx context.Context, st models.StageState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stages[st.DocumentID] == nil {
		m.stages[st.DocumentID] = map[string]models.StageState{}
	}
	m.stages[st.DocumentID][st.Stage] = st
	return nil
}

func (m *memDB) ListStageStates(ctx context.Context, documentID string) ([]models.StageState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StageState
	for _, stage := range pipeline.Order {
		if st, ok := m.stages[documentID][string(stage)]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *memDB) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.DocumentID] = append(m.chunks[c.DocumentID], c)
	}
	return nil
}

func (m *memDB) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[documentID], nil
}

func (m *memDB) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, documentID)
	return nil
}

func (m *memDB) SearchProjectChunks(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	return nil, nil
}

func (m *memDB) GetSettings(ctx context.Context, projectID string) (*ragconfig.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[projectID], nil
}

func (m *memDB) UpsertSettings(ctx context.Context, projectID string, s ragconfig.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[projectID] = &s
	return nil
}

func (m *memDB) Close() error { return nil }

var _ core.DbClient = (*memDB)(nil)

// memStorage is an in-memory core.ObjectClient.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "mem://" + key, nil
}

func (s *memStorage) DeleteFile(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStorage) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key], nil
}

func (s *memStorage) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) PresignPutURL(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error) {
	return "https://storage.example/" + key, nil
}

// memIndex is an in-memory core.KeywordIndex recording deletions.
type memIndex struct {
	mu      sync.Mutex
	deleted []string
}

func (k *memIndex) IndexChunks(ctx context.Context, projectID string, chunks []models.DocumentChunk) error {
	return nil
}

func (k *memIndex) DeleteDocument(ctx context.Context, projectID, documentID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.deleted = append(k.deleted, documentID)
	return nil
}

func (k *memIndex) Search(ctx context.Context, projectID, query string, limit int) ([]core.KeywordHit, error) {
	return nil, nil
}

func (k *memIndex) Close() error { return nil }

// memQueue records enqueued document IDs.
type memQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *memQueue) Enqueue(docID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, docID)
}

func newTestDocumentService(t *testing.T) (*DocumentService, *memDB, *memStorage, *memIndex, *memQueue) {
	t.Helper()
	db := newMemDB()
	storage := newMemStorage()
	kw := &memIndex{}
	queue := &memQueue{}
	db.projects["proj-1"] = &models.Project{ID: "proj-1", UserID: "user-1", Name: "reports"}
	return NewDocumentService(db, storage, kw, queue, "test-bucket"), db, storage, kw, queue
}

func TestRegisterUpload_SeedsAllStageRows(t *testing.T) {
	svc, db, _, _, queue := newTestDocumentService(t)

	doc, uploadURL, err := svc.RegisterUpload(context.Background(), "user-1", "proj-1",
		"report.pdf", 1024, "application/pdf")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Contains(t, uploadURL, doc.StorageKey)
	assert.Equal(t, string(pipeline.StageUploading), doc.Status)
	assert.Empty(t, queue.ids, "nothing is queued before confirmation")

	states, err := db.ListStageStates(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, states, len(pipeline.Order))

	assert.Equal(t, string(pipeline.StateProcessing), states[0].Status)
	for _, st := range states[1:] {
		assert.Equal(t, string(pipeline.StatePending), st.Status, st.Stage)
	}
}

func TestRegisterUpload_RejectsBadEnvelopes(t *testing.T) {
	svc, _, _, _, _ := newTestDocumentService(t)
	ctx := context.Background()

	_, _, err := svc.RegisterUpload(ctx, "user-1", "proj-1", "a.zip", 10, "application/zip")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, _, err = svc.RegisterUpload(ctx, "user-1", "proj-1", "a.pdf", MaxFileSize+1, "application/pdf")
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, _, err = svc.RegisterUpload(ctx, "user-1", "proj-1", "a.pdf", 0, "application/pdf")
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, _, err = svc.RegisterUpload(ctx, "user-1", "missing", "a.pdf", 10, "application/pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmUpload_QueuesDocumentOnce(t *testing.T) {
	svc, db, storage, _, queue := newTestDocumentService(t)
	ctx := context.Background()

	doc, _, err := svc.RegisterUpload(ctx, "user-1", "proj-1", "report.pdf", 1024, "application/pdf")
	require.NoError(t, err)

	// Simulate the client's PUT to the presigned URL.
	_, err = storage.UploadFile(ctx, "test-bucket", doc.StorageKey, []byte("pdf bytes"), "application/pdf")
	require.NoError(t, err)

	confirmed, err := svc.ConfirmUpload(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, string(pipeline.StageQueued), confirmed.Status)
	assert.Equal(t, []string{doc.ID}, queue.ids)

	states, _ := db.ListStageStates(ctx, doc.ID)
	assert.Equal(t, string(pipeline.StateCompleted), states[0].Status)
	assert.Equal(t, string(pipeline.StateProcessing), states[1].Status)

	// A retried confirmation is a conflict, not a double enqueue.
	_, err = svc.ConfirmUpload(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, queue.ids, 1)
}

func TestConfirmUpload_FailsWithoutStoredObject(t *testing.T) {
	svc, _, _, _, queue := newTestDocumentService(t)
	ctx := context.Background()

	doc, _, err := svc.RegisterUpload(ctx, "user-1", "proj-1", "report.pdf", 1024, "application/pdf")
	require.NoError(t, err)

	_, err = svc.ConfirmUpload(ctx, doc.ID)
	require.Error(t, err, "confirming before the bytes arrived must fail")
	assert.Empty(t, queue.ids)
}

func TestChunks_GatedUntilPipelineCompletes(t *testing.T) {
	svc, db, _, _, _ := newTestDocumentService(t)
	ctx := context.Background()

	doc := &models.Document{ID: "doc-1", ProjectID: "proj-1", Status: string(pipeline.StageEmbedding)}
	require.NoError(t, db.CreateDocument(ctx, doc))
	require.NoError(t, db.InsertDocumentChunks(ctx, []models.DocumentChunk{
		{ID: "c1", DocumentID: "doc-1", Type: models.ChunkTypeText, Content: "hello"},
	}))

	_, err := svc.Chunks(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, db.UpdateDocumentStatus(ctx, "doc-1", pipeline.StatusFailed, 40))
	_, err = svc.Chunks(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotReady, "failed runs expose no chunks")

	require.NoError(t, db.UpdateDocumentStatus(ctx, "doc-1", pipeline.StatusCompleted, 100))
	chunks, err := svc.Chunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestDelete_RemovesEveryTrace(t *testing.T) {
	svc, db, storage, kw, _ := newTestDocumentService(t)
	ctx := context.Background()

	doc, _, err := svc.RegisterUpload(ctx, "user-1", "proj-1", "report.pdf", 1024, "application/pdf")
	require.NoError(t, err)
	_, err = storage.UploadFile(ctx, "test-bucket", doc.StorageKey, []byte("pdf bytes"), "application/pdf")
	require.NoError(t, err)
	require.NoError(t, db.InsertDocumentChunks(ctx, []models.DocumentChunk{
		{ID: "c1", DocumentID: doc.ID, Type: models.ChunkTypeText},
	}))

	require.NoError(t, svc.Delete(ctx, doc.ID))

	assert.Equal(t, []string{doc.ID}, kw.deleted)
	assert.Equal(t, []string{doc.StorageKey}, storage.deleted)
	gone, _ := db.GetDocumentByID(ctx, doc.ID)
	assert.Nil(t, gone)
	left, _ := db.GetChunksByDocument(ctx, doc.ID)
	assert.Empty(t, left)
}

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/services"
)

// fakeBackend emulates the upload API plus the storage endpoint the
// presigned URLs point at. Files whose name starts with "bad-transfer"
// get a storage URL that always answers 500.
type fakeBackend struct {
	mu         sync.Mutex
	server     *httptest.Server
	requests   atomic.Int32
	deleted    []string
	confirmed  []string
	failDelete bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/projects/{project_id}/documents/register", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		var req struct {
			FileName    string `json:"file_name"`
			FileSize    int64  `json:"file_size"`
			ContentType string `json:"content_type"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		doc := models.Document{
			ID:        uuid.NewString(),
			ProjectID: r.PathValue("project_id"),
			FileName:  req.FileName,
			Status:    "uploading",
		}
		storagePath := "/storage/" + doc.ID
		if strings.HasPrefix(req.FileName, "bad-transfer") {
			storagePath = "/storage-broken/" + doc.ID
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Registration{Document: doc, UploadURL: b.server.URL + storagePath})
	})
	mux.HandleFunc("PUT /storage/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /storage-broken/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		http.Error(w, "disk on fire", http.StatusInternalServerError)
	})
	mux.HandleFunc("POST /api/documents/{document_id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		id := r.PathValue("document_id")
		b.mu.Lock()
		b.confirmed = append(b.confirmed, id)
		b.mu.Unlock()
		json.NewEncoder(w).Encode(models.Document{ID: id, Status: "queued"})
	})
	mux.HandleFunc("DELETE /api/documents/{document_id}", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		if b.failDelete {
			http.Error(w, "delete broken", http.StatusInternalServerError)
			return
		}
		b.mu.Lock()
		b.deleted = append(b.deleted, r.PathValue("document_id"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) client() *Client {
	return New(b.server.URL, "test-token")
}

// recordingObserver captures lifecycle callbacks for assertions.
type recordingObserver struct {
	mu         sync.Mutex
	registered []string
	queued     []string
	failed     []string
}

func (o *recordingObserver) Registered(doc models.Document) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registered = append(o.registered, doc.FileName)
}

func (o *recordingObserver) Queued(doc models.Document) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queued = append(o.queued, doc.ID)
}

func (o *recordingObserver) Failed(fileName string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, fileName)
}

func textFile(name string) LocalFile {
	return LocalFile{Name: name, ContentType: "text/plain", Data: []byte("hello world")}
}

func TestUploader_IngestHappyPath(t *testing.T) {
	backend := newFakeBackend(t)
	obs := &recordingObserver{}
	up := NewUploader(backend.client(), obs, nil)

	doc, err := up.Ingest(context.Background(), "proj-1", textFile("notes.txt"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "queued", doc.Status)
	assert.Equal(t, []string{"notes.txt"}, obs.registered)
	assert.Equal(t, []string{doc.ID}, obs.queued)
	assert.Empty(t, obs.failed)
	assert.Empty(t, backend.deleted)
}

func TestUploader_EnvelopeRejectedBeforeNetwork(t *testing.T) {
	backend := newFakeBackend(t)
	up := NewUploader(backend.client(), nil, nil)

	cases := []LocalFile{
		{Name: "malware.exe", ContentType: "application/x-msdownload", Data: []byte("x")},
		{Name: "huge.pdf", ContentType: "application/pdf", Data: nil}, // zero bytes
	}
	for _, f := range cases {
		_, err := up.Ingest(context.Background(), "proj-1", f)
		require.Error(t, err, f.Name)
		assert.ErrorIs(t, err, ErrRegistrationFailed)
	}
	assert.ErrorIs(t, func() error {
		_, err := up.Ingest(context.Background(), "proj-1",
			LocalFile{Name: "x.zip", ContentType: "application/zip", Data: []byte("x")})
		return err
	}(), services.ErrUnsupportedType)

	assert.Zero(t, backend.requests.Load(), "invalid envelopes must never reach the network")
}

func TestUploader_TransferFailureCleansUpSlot(t *testing.T) {
	backend := newFakeBackend(t)
	obs := &recordingObserver{}
	up := NewUploader(backend.client(), obs, nil)

	_, err := up.Ingest(context.Background(), "proj-1", textFile("bad-transfer.txt"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.NotErrorIs(t, err, ErrCleanupFailed)
	assert.Len(t, backend.deleted, 1, "orphaned slot must be deleted")
	assert.Empty(t, backend.confirmed)
	assert.Equal(t, []string{"bad-transfer.txt"}, obs.failed)
	// The slot was still surfaced optimistically before the transfer died.
	assert.Equal(t, []string{"bad-transfer.txt"}, obs.registered)
}

func TestUploader_CleanupFailureIsJoined(t *testing.T) {
	backend := newFakeBackend(t)
	backend.failDelete = true
	up := NewUploader(backend.client(), nil, nil)

	_, err := up.Ingest(context.Background(), "proj-1", textFile("bad-transfer.txt"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrTransferFailed, "original cause must survive")
	assert.ErrorIs(t, err, ErrCleanupFailed, "cleanup failure must be joined, not swallowed")
}

func TestUploader_BatchIsolation(t *testing.T) {
	backend := newFakeBackend(t)
	obs := &recordingObserver{}
	up := NewUploader(backend.client(), obs, nil)

	files := []LocalFile{
		textFile("a.txt"),
		textFile("bad-transfer-b.txt"),
		textFile("c.txt"),
	}
	results := up.IngestAll(context.Background(), "proj-1", files)
	require.Len(t, results, 3)

	assert.Equal(t, "a.txt", results[0].FileName)
	assert.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Document)
	assert.Equal(t, "queued", results[0].Document.Status)

	assert.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, ErrTransferFailed)
	assert.Nil(t, results[1].Document)

	assert.NoError(t, results[2].Err, "sibling failure must not poison this file")
	require.NotNil(t, results[2].Document)

	assert.Len(t, backend.confirmed, 2)
	assert.Len(t, backend.deleted, 1)
}

func TestUploader_ConfirmationFailureCleansUp(t *testing.T) {
	backend := newFakeBackend(t)
	// Replace confirm behavior by pointing the client at a wrapper that 500s
	// confirms but proxies everything else.
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/confirm") {
			http.Error(w, "queue unavailable", http.StatusInternalServerError)
			return
		}
		req, err := http.NewRequest(r.Method, backend.server.URL+r.URL.Path, r.Body)
		require.NoError(t, err)
		req.Header = r.Header.Clone()
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	}))
	t.Cleanup(proxy.Close)

	up := NewUploader(New(proxy.URL, "t"), nil, nil)
	_, err := up.Ingest(context.Background(), "proj-1", textFile("notes.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfirmationFailed)
	assert.Len(t, backend.deleted, 1, "confirmed-less slot must be deleted")
}

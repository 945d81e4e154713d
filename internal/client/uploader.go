package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/services"
)

// cleanupTimeout bounds the compensating delete after a failed upload.
const cleanupTimeout = 15 * time.Second

// LocalFile is one file staged for upload.
type LocalFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Observer receives upload lifecycle callbacks so a UI can show the document
// optimistically as soon as its slot exists. All methods may be called from
// concurrent goroutines during batch uploads.
type Observer interface {
	// Registered fires when the slot exists: the document is visible in the
	// "uploading" stage before any byte moved.
	Registered(doc models.Document)
	// Queued fires after a successful confirmation.
	Queued(doc models.Document)
	// Failed fires when the upload broke at any step, after cleanup ran.
	Failed(fileName string, err error)
}

// nopObserver is the default when the caller does not care.
type nopObserver struct{}

func (nopObserver) Registered(models.Document) {}
func (nopObserver) Queued(models.Document)     {}
func (nopObserver) Failed(string, error)       {}

// Uploader drives the three-step upload: register a slot, transfer the bytes
// to storage, confirm. A failure after registration triggers a compensating
// delete of the slot so no orphaned "uploading" documents accumulate.
type Uploader struct {
	api      *Client
	observer Observer
	log      *zap.Logger
}

func NewUploader(api *Client, observer Observer, log *zap.Logger) *Uploader {
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploader{api: api, observer: observer, log: log}
}

// Ingest uploads one file into a project and returns the queued document.
// The envelope is checked locally first so obviously invalid files never
// reach the network.
func (u *Uploader) Ingest(ctx context.Context, projectID string, f LocalFile) (*models.Document, error) {
	doc, err := u.ingest(ctx, projectID, f)
	if err != nil {
		u.observer.Failed(f.Name, err)
		return nil, err
	}
	u.observer.Queued(*doc)
	return doc, nil
}

func (u *Uploader) ingest(ctx context.Context, projectID string, f LocalFile) (*models.Document, error) {
	if err := services.ValidateEnvelope(f.Name, int64(len(f.Data)), f.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	reg, err := u.api.Register(ctx, projectID, f.Name, int64(len(f.Data)), f.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	u.observer.Registered(reg.Document)
	u.log.Debug("upload slot registered",
		zap.String("document_id", reg.Document.ID), zap.String("file", f.Name))

	if err := u.api.Transfer(ctx, reg.UploadURL, f.ContentType, bytes.NewReader(f.Data), int64(len(f.Data))); err != nil {
		return nil, u.cleanup(reg.Document.ID, fmt.Errorf("%w: %w", ErrTransferFailed, err))
	}

	doc, err := u.api.Confirm(ctx, reg.Document.ID)
	if err != nil {
		return nil, u.cleanup(reg.Document.ID, fmt.Errorf("%w: %w", ErrConfirmationFailed, err))
	}
	return doc, nil
}

// cleanup deletes the registered slot after a mid-upload failure. Cleanup
// runs on a fresh context: the original one may already be the reason the
// upload died. A failed cleanup is joined onto the cause, never swallowed.
func (u *Uploader) cleanup(documentID string, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := u.api.DeleteDocument(cleanupCtx, documentID); err != nil {
		u.log.Warn("compensating delete failed",
			zap.String("document_id", documentID), zap.Error(err))
		return errors.Join(cause, fmt.Errorf("%w: %w", ErrCleanupFailed, err))
	}
	return cause
}

// Result pairs one batch entry with its outcome.
type Result struct {
	FileName string
	Document *models.Document
	Err      error
}

// IngestAll uploads a batch concurrently. Files are isolated: one failure
// never aborts or rolls back its siblings. Results come back in input order.
func (u *Uploader) IngestAll(ctx context.Context, projectID string, files []LocalFile) []Result {
	results := make([]Result, len(files))

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f LocalFile) {
			defer wg.Done()
			doc, err := u.Ingest(ctx, projectID, f)
			results[i] = Result{FileName: f.Name, Document: doc, Err: err}
		}(i, f)
	}
	wg.Wait()
	return results
}

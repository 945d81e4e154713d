package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/services"
)

type DocumentHandler struct {
	docs *services.DocumentService
}

func NewDocumentHandler(docs *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type registerUploadRequest struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
}

type registerUploadResponse struct {
	Document  models.Document `json:"document"`
	UploadURL string          `json:"upload_url"`
}

// RegisterUpload reserves a document slot and returns a presigned PUT URL.
// The client transfers the bytes directly to storage, then confirms.
func (h *DocumentHandler) RegisterUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req registerUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	// Strip path components to prevent traversal through the storage key.
	fileName := filepath.Base(req.FileName)

	doc, uploadURL, err := h.docs.RegisterUpload(r.Context(), userID,
		chi.URLParam(r, "project_id"), fileName, req.FileSize, req.ContentType)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerUploadResponse{Document: *doc, UploadURL: uploadURL})
}

// Confirm marks a registered upload as transferred and queues it for
// processing.
func (h *DocumentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.ConfirmUpload(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	documents, err := h.docs.ListByProject(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

// Status returns the polling payload: document, per-stage states, metrics.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.docs.Status(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Chunks returns the stored chunks once processing completed; before that it
// answers 409 so clients can tell "not yet" from "empty".
func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.docs.Chunks(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if chunks == nil {
		chunks = []models.DocumentChunk{}
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Delete(r.Context(), chi.URLParam(r, "document_id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragstack/corpora/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps service errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrNotReady),
		errors.Is(err, services.ErrConflict),
		errors.Is(err, services.ErrEmbeddingModelLocked):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUnsupportedType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragstack/corpora/internal/services"
)

type SearchHandler struct {
	search *services.SearchService
}

func NewSearchHandler(search *services.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query string `json:"query"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	results, err := h.search.Search(r.Context(), chi.URLParam(r, "project_id"), req.Query)
	if err != nil {
		writeErr(w, err)
		return
	}
	if results == nil {
		results = []services.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

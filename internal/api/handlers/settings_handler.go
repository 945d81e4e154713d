package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragstack/corpora/internal/ragconfig"
	"github.com/ragstack/corpora/internal/services"
)

type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

type settingsResponse struct {
	Settings ragconfig.Settings `json:"settings"`
	Metrics  ragconfig.Metrics  `json:"metrics"`
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: s, Metrics: ragconfig.Estimate(s)})
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in ragconfig.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	saved, metrics, err := h.settings.Update(r.Context(), chi.URLParam(r, "project_id"), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: saved, Metrics: metrics})
}

// Preview estimates a candidate configuration without saving it, so the UI
// can show cost numbers as knobs move.
func (h *SettingsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var in ragconfig.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	clamped, metrics := h.settings.Preview(in)
	writeJSON(w, http.StatusOK, settingsResponse{Settings: clamped, Metrics: metrics})
}

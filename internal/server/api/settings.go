package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/candlelight/internal/store"
)

// SettingsHandler handles GET and PUT /api/settings. Saved calibration is
// applied on the next start.
type SettingsHandler struct {
	store *store.Store
}

// NewSettingsHandler creates a new SettingsHandler with the given store.
func NewSettingsHandler(s *store.Store) *SettingsHandler {
	return &SettingsHandler{store: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Settings().Calibration()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var c store.Calibration
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	repo := h.store.Settings()
	if err := repo.SaveCalibration(c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	saved, err := repo.Calibration()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

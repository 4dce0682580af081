package server

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/candlelight/internal/geometry"
)

// handleState handles GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.config.Session.Snapshot())
}

// handleRelight handles POST /api/relight.
func (s *Server) handleRelight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"relit": s.config.Session.Relight()})
}

// handleLayout handles POST /api/layout with the display rectangle in
// screen pixels. A body with "mount": true restarts the settle delay first.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req layoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := applyLayout(s.config.Session, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type layoutRequest struct {
	Mount bool `json:"mount,omitempty"`
	geometry.Rect
}

type layoutError string

func (e layoutError) Error() string { return string(e) }

func applyLayout(c Controller, req layoutRequest) error {
	if req.Width < 0 || req.Height < 0 {
		return layoutError("width and height must not be negative")
	}
	if req.Mount {
		c.Mount()
	}
	c.Report(req.Rect)
	return nil
}

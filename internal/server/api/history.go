package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/candlelight/internal/store"
)

type historyResponse struct {
	Transitions  []*store.TransitionRecord `json:"transitions"`
	Extinguished *int                      `json:"extinguished,omitempty"`
}

// HistoryHandler handles GET /api/history?limit=N&session=ID. With a session
// the transitions are filtered and the number of blow-outs is included.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a new HistoryHandler with the given store.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := store.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	history := h.store.History()
	session := r.URL.Query().Get("session")

	var resp historyResponse
	var err error
	if session == "" {
		resp.Transitions, err = history.Recent(limit)
	} else {
		resp.Transitions, err = history.RecentForSession(session, limit)
		if err == nil {
			var n int
			n, err = history.CountExtinguished(session)
			resp.Extinguished = &n
		}
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if resp.Transitions == nil {
		resp.Transitions = []*store.TransitionRecord{}
	}
	writeJSON(w, http.StatusOK, resp)
}

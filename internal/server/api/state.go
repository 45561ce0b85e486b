package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/status"
)

// StateHandler serves the most recently published controller state.
type StateHandler struct {
	publisher *status.Publisher
}

// NewStateHandler creates a StateHandler reading from p.
func NewStateHandler(p *status.Publisher) *StateHandler {
	return &StateHandler{publisher: p}
}

// ServeHTTP handles GET /api/state. It returns 503 until the first frame
// has been processed.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, ok := h.publisher.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No frame processed yet")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

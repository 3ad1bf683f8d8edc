package api

import (
	"errors"
	"net/http"

	service "github.com/okian/solcast/internal/app"
)

// RunsHandler triggers pipeline cycles and reports the last one.
type RunsHandler struct {
	deps Dependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps Dependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

// HandleTrigger handles POST /runs. The cycle runs on the request context and
// its summary is returned once every stage has finished.
func (h *RunsHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	sum, err := h.deps.RunCycle(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sum)
	case errors.Is(err, service.ErrCycleRunning):
		writeError(w, http.StatusConflict, "cycle_running", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "not_started", err)
	default:
		writeError(w, http.StatusInternalServerError, "cycle_failed", err)
	}
}

// HandleLatest handles GET /runs/latest.
func (h *RunsHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	sum, ok := h.deps.LastRun()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

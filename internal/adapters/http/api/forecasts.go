package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/solcast/internal/adapters/sink"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/types"
)

// ForecastsHandler serves the latest forecast batches.
type ForecastsHandler struct {
	deps Dependencies
}

// NewForecastsHandler creates a new forecasts handler.
func NewForecastsHandler(deps Dependencies) *ForecastsHandler {
	return &ForecastsHandler{deps: deps}
}

// HandleList handles GET /forecasts?horizon=<h>.
func (h *ForecastsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	horizon, err := horizonParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_horizon", err)
		return
	}

	loc := h.deps.Location()
	batches := h.deps.Latest(horizon)
	out := make([]types.ForecastBatch, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatch(b, loc))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /forecasts/{plant_id}?horizon=<h>.
func (h *ForecastsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	plantID := strings.TrimPrefix(r.URL.Path, "/forecasts/")
	if plantID == "" || strings.Contains(plantID, "/") {
		writeError(w, http.StatusBadRequest, "invalid_plant_id", fmt.Errorf("%w: missing plant id", ErrBadRequest))
		return
	}
	horizon, err := horizonParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_horizon", err)
		return
	}

	b, ok := h.deps.LatestPlant(horizon, plantID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found",
			fmt.Errorf("%w: no %s forecast for plant %s", ErrNotFound, horizon, plantID))
		return
	}
	writeJSON(w, http.StatusOK, toBatch(b, h.deps.Location()))
}

// horizonParam reads the required horizon query parameter.
func horizonParam(r *http.Request) (model.Horizon, error) {
	raw := r.URL.Query().Get("horizon")
	if raw == "" {
		return "", fmt.Errorf("%w: missing horizon", ErrBadRequest)
	}
	h, err := model.ParseHorizon(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return h, nil
}

func toBatch(b sink.Batch, loc *time.Location) types.ForecastBatch {
	rows := make([]types.ForecastRow, len(b.Records))
	for i, rec := range b.Records {
		rows[i] = types.Row(rec, sink.TimeLayout, loc)
	}
	return types.ForecastBatch{
		RunID:     b.RunID,
		Horizon:   string(b.Horizon),
		PlantID:   b.PlantID,
		Revision:  b.Revision,
		CreatedAt: b.CreatedAt,
		Rows:      rows,
	}
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/solcast/internal/adapters/sink"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Latest returns the newest forecast batch of every plant for a horizon.
	Latest(h model.Horizon) []sink.Batch
	LatestPlant(h model.Horizon, plantID string) (sink.Batch, bool)

	// RunCycle runs one pipeline cycle synchronously.
	RunCycle(ctx context.Context) (types.RunSummary, error)
	LastRun() (types.RunSummary, bool)

	// Location is the wall clock forecast timestamps are rendered in.
	Location() *time.Location
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	forecastsHandler *ForecastsHandler
	runsHandler      *RunsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(nil),
		statsHandler:     NewStatsHandler(statsProvider),
		forecastsHandler: NewForecastsHandler(deps),
		runsHandler:      NewRunsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/forecasts", MetricsMiddleware(s.forecastsHandler.HandleList, "forecasts"))
	mux.HandleFunc("/forecasts/", MetricsMiddleware(s.forecastsHandler.HandleGet, "forecast"))
	mux.HandleFunc("/runs", MetricsMiddleware(s.runsHandler.HandleTrigger, "runs"))
	mux.HandleFunc("/runs/latest", MetricsMiddleware(s.runsHandler.HandleLatest, "runs_latest"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// Package types contains the JSON shapes served by the HTTP API.
package types

import (
	"time"

	"github.com/okian/solcast/internal/domain/model"
)

// ForecastRow is one forecast record. Forecast is null for unmodeled blocks.
type ForecastRow struct {
	OwnerID  string   `json:"owner_id"`
	PlantID  string   `json:"plant_id"`
	Datetime string   `json:"datetime"`
	Revision int      `json:"revision"`
	Forecast *float64 `json:"forecast"`
}

// ForecastBatch is the latest forecast of one plant for one horizon.
type ForecastBatch struct {
	RunID     string        `json:"run_id"`
	Horizon   string        `json:"horizon"`
	PlantID   string        `json:"plant_id"`
	Revision  int           `json:"revision"`
	CreatedAt time.Time     `json:"created_at"`
	Rows      []ForecastRow `json:"rows"`
}

// TaskResult is the outcome of one plant task.
type TaskResult struct {
	PlantID    string  `json:"plant_id"`
	Stage      string  `json:"stage"`
	Horizon    string  `json:"horizon,omitempty"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// RunSummary describes a finished pipeline cycle.
type RunSummary struct {
	RunID          string                    `json:"run_id"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
	PredictionTime time.Time                 `json:"prediction_time"`
	Revisions      map[string]int            `json:"revisions"`
	Counts         map[string]map[string]int `json:"counts"`
	Results        []TaskResult              `json:"results"`
}

// Row converts a record, formatting its timestamp with layout in loc.
func Row(r model.ForecastRecord, layout string, loc *time.Location) ForecastRow {
	row := ForecastRow{
		OwnerID:  r.OwnerID,
		PlantID:  r.PlantID,
		Datetime: r.Timestamp.In(loc).Format(layout),
		Revision: r.Revision,
	}
	if r.Valid {
		v := r.Forecast
		row.Forecast = &v
	}
	return row
}

// Result converts a task result.
func Result(r model.Result) TaskResult {
	out := TaskResult{
		PlantID:    r.PlantID,
		Stage:      r.Stage,
		Horizon:    string(r.Horizon),
		Status:     string(r.Status),
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

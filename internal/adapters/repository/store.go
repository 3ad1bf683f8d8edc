// Package repository persists raw readings, processed series and trained
// models behind small key-value interfaces.
package repository

import (
	"context"

	"github.com/okian/solcast/internal/domain/model"
)

// RawSource yields a plant's raw readings in arbitrary order.
type RawSource interface {
	// Readings returns ErrNotFound when the plant has no raw data.
	Readings(ctx context.Context, plantID string) ([]model.Reading, error)
}

// SeriesStore keeps the processed series of each plant, keyed by plant id.
type SeriesStore interface {
	SaveSeries(ctx context.Context, s *model.Series) error
	// LoadSeries returns ErrNotFound when nothing was saved for the plant.
	LoadSeries(ctx context.Context, plantID string) (*model.Series, error)
}

// ModelStore keeps trained models keyed by (horizon, plant id).
type ModelStore interface {
	SaveModel(ctx context.Context, m *model.EWMAModel) error
	// LoadModel returns ErrNotFound when no model was trained for key.
	LoadModel(ctx context.Context, key model.ModelKey) (*model.EWMAModel, error)
}

func cloneModel(m *model.EWMAModel) *model.EWMAModel {
	out := *m
	out.Values = make(map[int]float64, len(m.Values))
	for b, v := range m.Values {
		out.Values[b] = v
	}
	return &out
}

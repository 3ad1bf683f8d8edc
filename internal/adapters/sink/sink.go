// Package sink delivers forecast batches to their destinations.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/okian/solcast/internal/domain/model"
)

// Batch is the forecast of one plant for one horizon produced by a run.
type Batch struct {
	RunID     string
	Horizon   model.Horizon
	PlantID   string
	Revision  int
	CreatedAt time.Time
	Records   []model.ForecastRecord
}

// Sink accepts forecast batches. Write must not retain b.Records.
type Sink interface {
	Write(ctx context.Context, b Batch) error
}

// Multi writes every batch to each sink in order, joining their errors.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, b Batch) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every batch.
type Discard struct{}

// Write implements Sink.
func (Discard) Write(context.Context, Batch) error { return nil }

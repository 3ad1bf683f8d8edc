// Package forecast replays a trained EWMA model onto a target day's time grid.
package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
	"github.com/okian/solcast/pkg/logger"
)

// Decimals is the precision of every emitted forecast value.
const Decimals = 2

// CapacityLookup resolves a plant's clipping ceiling. ok is false when the
// plant must not be clipped.
type CapacityLookup interface {
	Ceiling(plantID string) (avc float64, ok bool, err error)
}

// Request describes one forecast batch.
type Request struct {
	OwnerID  string
	PlantID  string
	Horizon  model.Horizon
	Revision int
	// Now selects the target day: its own day for intraday and vstf, the next
	// day for day-ahead.
	Now time.Time
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithLogger sets the logger used for skip diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// Generator builds forecast batches.
type Generator struct {
	capacity CapacityLookup
	log      logger.Logger
}

// NewGenerator returns a Generator that clips against capacity.
func NewGenerator(capacity CapacityLookup, opts ...Option) *Generator {
	g := &Generator{capacity: capacity, log: logger.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TargetDay returns midnight of the day a horizon forecasts for.
func TargetDay(h model.Horizon, now time.Time) time.Time {
	day := timeblock.Midnight(now)
	if h == model.HorizonDayAhead {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// Generate returns the 96 records of req's target day in block order. Blocks
// the model has no value for are returned with Valid=false. A nil model yields
// model.ErrDataAbsent.
func (g *Generator) Generate(m *model.EWMAModel, req Request) ([]model.ForecastRecord, error) {
	if m == nil {
		g.log.Warn(context.Background(), "no trained model, skipping forecast",
			logger.String("plant_id", req.PlantID),
			logger.String("horizon", string(req.Horizon)))
		return nil, fmt.Errorf("forecast %s/%s: %w", req.Horizon, req.PlantID, model.ErrDataAbsent)
	}

	avc, clip, err := g.capacity.Ceiling(req.PlantID)
	if err != nil {
		return nil, fmt.Errorf("forecast %s/%s: %w", req.Horizon, req.PlantID, err)
	}

	slots := timeblock.Slots(TargetDay(req.Horizon, req.Now))
	out := make([]model.ForecastRecord, 0, len(slots))
	for _, ts := range slots {
		ts = timeblock.RoundSlot(ts)
		rec := model.ForecastRecord{
			OwnerID:   req.OwnerID,
			PlantID:   req.PlantID,
			Timestamp: ts,
			Revision:  req.Revision,
		}
		if v, ok := m.Value(timeblock.Of(ts)); ok {
			if clip && v > avc {
				v = avc
			}
			rec.Forecast, rec.Valid = Round(v), true
		}
		out = append(out, rec)
	}
	return out, nil
}

// Round rounds v to Decimals places, halves away from zero.
func Round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(Decimals).Float64()
	return f
}

// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// AggregatedPlantID identifies the portfolio-wide pseudo-plant. It has no
// rated capacity and is never capacity clipped.
const AggregatedPlantID = "aggregated"

// BlocksPerDay is the number of 15-minute time-blocks in a calendar day.
const BlocksPerDay = 96

// SlotDuration is the spacing of a regularized series.
const SlotDuration = 15 * time.Minute

// IsAggregated reports whether plantID is the aggregated pseudo-plant.
func IsAggregated(plantID string) bool {
	return plantID == AggregatedPlantID
}

// Reading is a raw, irregularly spaced power observation.
type Reading struct {
	Timestamp time.Time
	Power     float64
}

// Sample is one slot of a regularized series. Valid is false for a missing slot.
type Sample struct {
	Timestamp time.Time
	Block     int
	Power     float64
	Valid     bool
}

// Series is a regularized 15-minute series for one plant.
type Series struct {
	PlantID string
	Samples []Sample
}

// Len returns the number of slots.
func (s *Series) Len() int { return len(s.Samples) }

// Last returns the final slot; ok is false for an empty series.
func (s *Series) Last() (Sample, bool) {
	if len(s.Samples) == 0 {
		return Sample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}

// Clone returns a deep copy of the series.
func (s *Series) Clone() *Series {
	out := &Series{PlantID: s.PlantID, Samples: make([]Sample, len(s.Samples))}
	copy(out.Samples, s.Samples)
	return out
}

// Horizon is the forecast lead-time class.
type Horizon string

const (
	HorizonIntraday Horizon = "intraday"
	HorizonVSTF     Horizon = "vstf"
	HorizonDayAhead Horizon = "day_ahead"
)

// Horizons lists every supported horizon in pipeline order.
func Horizons() []Horizon {
	return []Horizon{HorizonIntraday, HorizonVSTF, HorizonDayAhead}
}

// ParseHorizon accepts the canonical names plus a few common aliases.
func ParseHorizon(s string) (Horizon, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "intraday", "ind":
		return HorizonIntraday, nil
	case "vstf", "very_short_term":
		return HorizonVSTF, nil
	case "day_ahead", "dayahead", "da":
		return HorizonDayAhead, nil
	}
	return "", fmt.Errorf("unknown horizon %q", s)
}

// ForecastDir is the short directory name used for forecast output files.
func (h Horizon) ForecastDir() string {
	switch h {
	case HorizonIntraday:
		return "IND"
	case HorizonVSTF:
		return "VSTF"
	case HorizonDayAhead:
		return "DA"
	}
	return strings.ToUpper(string(h))
}

// ModelKey identifies a trained model.
type ModelKey struct {
	Horizon Horizon
	PlantID string
}

func (k ModelKey) String() string {
	return string(k.Horizon) + "/" + k.PlantID
}

// EWMAModel maps time-block to expected power. Blocks without a value are absent.
type EWMAModel struct {
	Key       ModelKey
	Values    map[int]float64
	TrainedAt time.Time
	Blended   bool
}

// Value returns the expected power for block.
func (m *EWMAModel) Value(block int) (float64, bool) {
	v, ok := m.Values[block]
	return v, ok
}

// ForecastRecord is one output row. Valid is false when the model had no value
// for the block (null forecast).
type ForecastRecord struct {
	OwnerID   string
	PlantID   string
	Timestamp time.Time
	Revision  int
	Forecast  float64
	Valid     bool
}

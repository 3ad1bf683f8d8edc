// Package regularize converts irregular raw readings into a fixed 15-minute series.
package regularize

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
)

// ErrRegularization is the kind of every regularization failure.
var ErrRegularization = errors.New("regularization failed")

// Error describes why a plant's readings could not be put on a grid.
type Error struct {
	PlantID string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("regularize plant %s: %s", e.PlantID, e.Reason)
}

// Unwrap lets errors.Is match ErrRegularization.
func (e *Error) Unwrap() error { return ErrRegularization }

// Regularize sorts readings, places each one into the 15-minute slot that
// contains it and returns a series covering every slot from the first to the
// last observation. Slots without a reading are kept with Valid=false. When
// several readings share a slot the first one after a stable sort wins.
// NaN or infinite power is kept as a missing value.
//
// The location of the earliest reading defines the grid's wall clock.
func Regularize(plantID string, readings []model.Reading) (*model.Series, error) {
	if len(readings) == 0 {
		return nil, &Error{PlantID: plantID, Reason: "no readings"}
	}

	sorted := make([]model.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	distinct := 1
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Timestamp.Equal(sorted[i-1].Timestamp) {
			distinct++
		}
	}
	if distinct < 2 {
		return nil, &Error{PlantID: plantID, Reason: "fewer than 2 distinct timestamps"}
	}

	loc := sorted[0].Timestamp.Location()
	start := timeblock.FloorSlot(sorted[0].Timestamp)
	end := timeblock.FloorSlot(sorted[len(sorted)-1].Timestamp.In(loc))

	n := int(end.Sub(start)/model.SlotDuration) + 1
	samples := make([]model.Sample, 0, n)
	index := make(map[int64]int, n)
	for t := start; !t.After(end); t = t.Add(model.SlotDuration) {
		index[t.Unix()] = len(samples)
		samples = append(samples, model.Sample{Timestamp: t, Block: timeblock.Of(t)})
	}

	filled := make([]bool, len(samples))
	for _, r := range sorted {
		slot := timeblock.FloorSlot(r.Timestamp.In(loc))
		i, ok := index[slot.Unix()]
		if !ok || filled[i] {
			continue
		}
		filled[i] = true
		if math.IsNaN(r.Power) || math.IsInf(r.Power, 0) {
			continue
		}
		samples[i].Power = r.Power
		samples[i].Valid = true
	}

	return &model.Series{PlantID: plantID, Samples: samples}, nil
}

// Span returns the covered interval of a regularized series.
func Span(s *model.Series) (first, last time.Time, ok bool) {
	if s == nil || len(s.Samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Samples[0].Timestamp, s.Samples[len(s.Samples)-1].Timestamp, true
}

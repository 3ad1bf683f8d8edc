// Package revision derives the revision number attached to a forecast batch.
package revision

import (
	"time"

	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
)

const (
	// DayAheadCutover is when the day-ahead revision moves from 0 to 1.
	DayAheadCutover = 6 * time.Hour
	// IntradayBuffer is how long before DayAheadCutover the intraday cycle starts.
	IntradayBuffer = 45 * time.Minute
	// IntradayStep is the spacing of intraday re-forecast runs.
	IntradayStep = 90 * time.Minute
)

// For returns the revision of horizon h at wall-clock time t. It depends only
// on t's time of day, so callers pick the location by converting t first.
func For(h model.Horizon, t time.Time) int {
	tod := timeblock.TimeOfDay(t)
	if h == model.HorizonDayAhead {
		if tod < DayAheadCutover {
			return 0
		}
		return 1
	}

	start := DayAheadCutover - IntradayBuffer
	if tod < start {
		return 1
	}
	return 2 + int((tod-start)/IntradayStep)
}

// PredictionTime floors now to its 15-minute slot. Every horizon of a run uses
// this instant for its revision.
func PredictionTime(now time.Time) time.Time {
	return timeblock.FloorSlot(now)
}

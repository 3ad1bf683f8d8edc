// Package daylight detects the active generation window of a plant and
// sanitizes a regularized series against it and the plant's capacity.
package daylight

import (
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
)

const (
	// TrailingSamples is the detection window: 10 days of 96 blocks.
	TrailingSamples = 10 * model.BlocksPerDay
	// SunriseFloor is the latest block the detected sunrise may take.
	SunriseFloor = 20
	// SunsetFloor is the earliest block the detected sunset may take.
	SunsetFloor = 80
)

// Window is the inclusive range of blocks where generation is allowed.
type Window struct {
	Sunrise int
	Sunset  int
}

// Contains reports whether block lies inside the window.
func (w Window) Contains(block int) bool {
	return block >= w.Sunrise && block <= w.Sunset
}

// Detect inspects the last TrailingSamples slots. For every calendar day with
// positive power it takes the first and last positive block; sunrise is the
// mode of the first blocks and sunset the mode of the last ones, ties going to
// the smallest block. The result is widened to cover at least blocks 20..80.
func Detect(s *model.Series) Window {
	samples := s.Samples
	if len(samples) > TrailingSamples {
		samples = samples[len(samples)-TrailingSamples:]
	}

	type span struct{ first, last int }
	days := map[timeblock.DayKey]*span{}
	for _, smp := range samples {
		if !smp.Valid || smp.Power <= 0 {
			continue
		}
		key := timeblock.Day(smp.Timestamp)
		d, ok := days[key]
		if !ok {
			days[key] = &span{first: smp.Block, last: smp.Block}
			continue
		}
		if smp.Block < d.first {
			d.first = smp.Block
		}
		if smp.Block > d.last {
			d.last = smp.Block
		}
	}

	w := Window{Sunrise: SunriseFloor, Sunset: SunsetFloor}
	if len(days) == 0 {
		return w
	}

	firsts := make([]int, 0, len(days))
	lasts := make([]int, 0, len(days))
	for _, d := range days {
		firsts = append(firsts, d.first)
		lasts = append(lasts, d.last)
	}
	w.Sunrise = min(SunriseFloor, mode(firsts))
	w.Sunset = max(SunsetFloor, mode(lasts))
	return w
}

// mode returns the most frequent value, preferring the smallest on ties.
func mode(values []int) int {
	counts := make(map[int]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := 0, 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// Report summarizes what a sanitization pass changed.
type Report struct {
	Window  Window
	Zeroed  int
	Nulled  int
	Clipped int
}

// Ceiling is the capacity clipping bound. Clipping is skipped unless Enabled,
// which is how the aggregated pseudo-plant is handled.
type Ceiling struct {
	AVC     float64
	Enabled bool
}

// Sanitize detects the window of s and applies it with Apply.
//
// Zeroing can move the per-day first or last positive block, so running
// Sanitize again on its own output may detect a narrower window. Callers that
// need a stable result reuse Report.Window with Apply.
func Sanitize(s *model.Series, ceiling Ceiling) Report {
	return Apply(s, Detect(s), ceiling)
}

// Apply mutates s in place against a fixed window. In order it forces power
// outside w to exactly zero, turns remaining negative power into a missing
// value and clips power above the ceiling. Applying the same window and
// ceiling twice yields the same series.
func Apply(s *model.Series, w Window, ceiling Ceiling) Report {
	rep := Report{Window: w}
	for i := range s.Samples {
		smp := &s.Samples[i]
		if !w.Contains(smp.Block) {
			if !smp.Valid || smp.Power != 0 {
				rep.Zeroed++
			}
			smp.Power, smp.Valid = 0, true
			continue
		}
		if !smp.Valid {
			continue
		}
		if smp.Power < 0 {
			smp.Power, smp.Valid = 0, false
			rep.Nulled++
			continue
		}
		if ceiling.Enabled && smp.Power > ceiling.AVC {
			smp.Power = ceiling.AVC
			rep.Clipped++
		}
	}
	return rep
}

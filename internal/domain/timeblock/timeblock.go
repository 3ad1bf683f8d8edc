// Package timeblock maps wall-clock times onto the 96 fifteen-minute blocks of a day.
package timeblock

import (
	"time"

	"github.com/okian/solcast/internal/domain/model"
)

const slotMinutes = 15

// Of returns the time-block of t in its own location: floor((h*60+m)/15)+1.
// The result is always in [1,96].
func Of(t time.Time) int {
	return (t.Hour()*60+t.Minute())/slotMinutes + 1
}

// Valid reports whether b is a real time-block.
func Valid(b int) bool {
	return b >= 1 && b <= model.BlocksPerDay
}

// FloorSlot truncates t to the start of its 15-minute slot. The wall-clock
// remainder is subtracted from the instant, so zones with non-hour offsets stay
// aligned and a repeated DST hour keeps both of its instants apart.
func FloorSlot(t time.Time) time.Time {
	t = t.Round(0)
	return t.Add(-(time.Duration(t.Minute()%slotMinutes)*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())))
}

// RoundSlot rounds t to the nearest 15-minute boundary, halves rounding up.
func RoundSlot(t time.Time) time.Time {
	floor := FloorSlot(t)
	if t.Sub(floor) >= model.SlotDuration/2 {
		return floor.Add(model.SlotDuration)
	}
	return floor
}

// Midnight returns the start of t's calendar day.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// TimeOfDay returns the wall-clock offset of t from its midnight.
func TimeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// DayKey identifies a calendar day independent of location pointer identity.
type DayKey struct {
	Year  int
	Month time.Month
	Day   int
}

// Day returns t's calendar day.
func Day(t time.Time) DayKey {
	y, m, d := t.Date()
	return DayKey{Year: y, Month: m, Day: d}
}

// Before reports whether k is an earlier day than o.
func (k DayKey) Before(o DayKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.Month != o.Month {
		return k.Month < o.Month
	}
	return k.Day < o.Day
}

// Slots returns the 96 slot starts of the calendar day containing t.
func Slots(day time.Time) []time.Time {
	y, m, d := day.Date()
	out := make([]time.Time, model.BlocksPerDay)
	for i := range out {
		out[i] = time.Date(y, m, d, 0, i*slotMinutes, 0, 0, day.Location())
	}
	return out
}

package ewma_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/solcast/internal/domain/ewma"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
	. "github.com/smartystreets/goconvey/convey"
)

var key = model.ModelKey{Horizon: model.HorizonIntraday, PlantID: "42"}

// build returns n consecutive slots starting at start with power from fn.
func build(start time.Time, n int, fn func(day, block int) float64) *model.Series {
	s := &model.Series{PlantID: "42"}
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * model.SlotDuration)
		b := timeblock.Of(ts)
		s.Samples = append(s.Samples, model.Sample{
			Timestamp: ts, Block: b, Power: fn(i/model.BlocksPerDay, b), Valid: true,
		})
	}
	return s
}

// daytime is 10 on blocks 30..60, except the last five slots of day 2 which read 20.
func daytime(day, block int) float64 {
	if day == 2 && block >= 44 {
		return 20
	}
	if block >= 30 && block <= 60 {
		return 10
	}
	return 0
}

func TestTrainBlending(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// Two full days plus day 2 up to block 48 (11:45).
	s := build(start, 2*model.BlocksPerDay+48, daytime)
	last, _ := s.Last()
	trainer := ewma.NewTrainer()

	Convey("Given a series whose last sample is 1 hour old", t, func() {
		m, err := trainer.Train(s, key, last.Timestamp.Add(time.Hour))
		So(err, ShouldBeNil)

		Convey("Then non-zero blocks are blended with the recent average", func() {
			So(m.Blended, ShouldBeTrue)
			v, ok := m.Value(30)
			So(ok, ShouldBeTrue)
			So(v, ShouldAlmostEqual, 0.3*10+0.7*20, 1e-9)
		})

		Convey("Then zero blocks stay zero", func() {
			v, ok := m.Value(1)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 0)
			v, _ = m.Value(70)
			So(v, ShouldEqual, 0)
		})

		Convey("Then every block of the window has a value", func() {
			So(len(m.Values), ShouldEqual, model.BlocksPerDay)
			So(m.Key, ShouldResemble, key)
		})
	})

	Convey("Given a series whose last sample is 5 hours old", t, func() {
		m, err := trainer.Train(s, key, last.Timestamp.Add(5*time.Hour))
		So(err, ShouldBeNil)

		Convey("Then the pure per-block EWMA is kept", func() {
			So(m.Blended, ShouldBeFalse)
			v, _ := m.Value(30)
			So(v, ShouldAlmostEqual, 10, 1e-9)
			v, _ = m.Value(44)
			So(v, ShouldAlmostEqual, (20+0.7*10+0.49*10)/(1+0.7+0.49), 1e-9)
		})
	})

	Convey("Given a live series whose recent samples are all missing", t, func() {
		c := s.Clone()
		for i := c.Len() - 5; i < c.Len(); i++ {
			c.Samples[i].Valid = false
		}
		m, err := trainer.Train(c, key, last.Timestamp.Add(time.Minute))
		So(err, ShouldBeNil)
		So(m.Blended, ShouldBeFalse)
	})
}

func TestTrainWindow(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := build(start, 3*model.BlocksPerDay, func(day, block int) float64 {
		if block == 30 && day == 0 {
			return 100
		}
		if block == 30 {
			return 10
		}
		return 0
	})
	last, _ := s.Last()
	now := last.Timestamp.Add(24 * time.Hour)

	Convey("Given a one day training window", t, func() {
		m, err := ewma.NewTrainer(ewma.WithDays(1)).Train(s, key, now)
		So(err, ShouldBeNil)

		Convey("Then older days are ignored", func() {
			v, _ := m.Value(30)
			So(v, ShouldAlmostEqual, 10, 1e-9)
		})
	})

	Convey("Given the default window", t, func() {
		m, err := ewma.NewTrainer().Train(s, key, now)
		So(err, ShouldBeNil)

		Convey("Then all days contribute, newest weighted most", func() {
			v, _ := m.Value(30)
			So(v, ShouldAlmostEqual, (10+0.7*10+0.49*100)/(1+0.7+0.49), 1e-9)
		})
	})

	Convey("Given a block that is missing on every day", t, func() {
		c := s.Clone()
		for i := range c.Samples {
			if c.Samples[i].Block == 50 {
				c.Samples[i].Valid = false
			}
		}
		m, err := ewma.NewTrainer().Train(c, key, now)
		So(err, ShouldBeNil)
		_, ok := m.Value(50)
		So(ok, ShouldBeFalse)
	})
}

func TestTrainAbsent(t *testing.T) {
	Convey("Given no processed series", t, func() {
		_, errNil := ewma.NewTrainer().Train(nil, key, time.Now())
		_, errEmpty := ewma.NewTrainer().Train(&model.Series{PlantID: "42"}, key, time.Now())

		Convey("Then training reports absent data", func() {
			So(errors.Is(errNil, model.ErrDataAbsent), ShouldBeTrue)
			So(errors.Is(errEmpty, model.ErrDataAbsent), ShouldBeTrue)
		})
	})
}

func TestWeighted(t *testing.T) {
	Convey("Given values with a gap", t, func() {
		samples := []model.Sample{
			{Power: 1, Valid: true},
			{Valid: false},
			{Power: 3, Valid: true},
		}

		Convey("Then the gap ages the older value", func() {
			v, ok := ewma.Weighted(samples, 0.5)
			So(ok, ShouldBeTrue)
			So(v, ShouldAlmostEqual, 2.6, 1e-9)
		})

		Convey("Then the recent mean skips the gap", func() {
			v, ok := ewma.RecentMean(samples, 5)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 2)
		})
	})

	Convey("Given only missing values", t, func() {
		_, ok := ewma.Weighted([]model.Sample{{}, {}}, 0.3)
		So(ok, ShouldBeFalse)
		_, ok = ewma.RecentMean([]model.Sample{{}}, 5)
		So(ok, ShouldBeFalse)
	})
}

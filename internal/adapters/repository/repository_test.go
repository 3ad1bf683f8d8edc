package repository_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/okian/solcast/internal/adapters/repository"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
	. "github.com/smartystreets/goconvey/convey"
)

func sampleSeries(loc *time.Location) *model.Series {
	s := &model.Series{PlantID: "42"}
	start := time.Date(2024, 7, 1, 23, 30, 0, 0, loc)
	for i := 0; i < 4; i++ {
		ts := start.Add(time.Duration(i) * model.SlotDuration)
		s.Samples = append(s.Samples, model.Sample{Timestamp: ts, Block: timeblock.Of(ts), Power: float64(i) + 0.25, Valid: i != 2})
	}
	return s
}

func sampleModel() *model.EWMAModel {
	return &model.EWMAModel{
		Key:    model.ModelKey{Horizon: model.HorizonDayAhead, PlantID: "42"},
		Values: map[int]float64{1: 0, 40: 12.5, 96: 0.125},
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty memory store", t, func() {
		s := repository.NewMemoryStore()

		Convey("Then every lookup is ErrNotFound", func() {
			_, err := s.Readings(ctx, "42")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.LoadSeries(ctx, "42")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.LoadModel(ctx, sampleModel().Key)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a model is saved and the original is mutated", func() {
			m := sampleModel()
			So(s.SaveModel(ctx, m), ShouldBeNil)
			m.Values[40] = -1

			Convey("Then the stored copy is unchanged", func() {
				got, err := s.LoadModel(ctx, m.Key)
				So(err, ShouldBeNil)
				So(got.Values[40], ShouldEqual, 12.5)
			})

			Convey("Then other horizons stay absent", func() {
				_, err := s.LoadModel(ctx, model.ModelKey{Horizon: model.HorizonIntraday, PlantID: "42"})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a series and readings are stored", func() {
			So(s.SaveSeries(ctx, sampleSeries(time.UTC)), ShouldBeNil)
			s.PutReadings("42", []model.Reading{{Timestamp: time.Unix(0, 0), Power: 1}})

			got, err := s.LoadSeries(ctx, "42")
			So(err, ShouldBeNil)
			So(got.Len(), ShouldEqual, 4)
			r, err := s.Readings(ctx, "42")
			So(err, ShouldBeNil)
			So(len(r), ShouldEqual, 1)
		})
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("IST", 5*3600+1800)

	Convey("Given a file store in a temp dir", t, func() {
		dir := t.TempDir()
		s := repository.NewFileStore(dir, repository.WithLocation(loc))

		Convey("Then missing files are ErrNotFound", func() {
			_, err := s.Readings(ctx, "42")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.LoadModel(ctx, sampleModel().Key)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When an upstream raw export is read", func() {
			raw := "utc_datetime,generation\n" +
				"2024-07-01T00:00:00Z,1.5\n" +
				"garbage,2\n" +
				"2024-07-01 00:07:00,\n"
			So(os.MkdirAll(filepath.Dir(s.RawPath("42")), 0o755), ShouldBeNil)
			So(os.WriteFile(s.RawPath("42"), []byte(raw), 0o600), ShouldBeNil)

			readings, err := s.Readings(ctx, "42")

			Convey("Then bad rows are skipped and timestamps move to local time", func() {
				So(err, ShouldBeNil)
				So(len(readings), ShouldEqual, 2)
				So(readings[0].Timestamp.Hour(), ShouldEqual, 5)
				So(readings[0].Timestamp.Minute(), ShouldEqual, 30)
				So(readings[0].Power, ShouldEqual, 1.5)
				So(math.IsNaN(readings[1].Power), ShouldBeTrue)
			})
		})

		Convey("When readings are written", func() {
			in := []model.Reading{{Timestamp: time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC), Power: 3}}
			So(s.WriteReadings(ctx, "9", in), ShouldBeNil)

			Convey("Then they read back", func() {
				out, err := s.Readings(ctx, "9")
				So(err, ShouldBeNil)
				So(out[0].Timestamp.Equal(in[0].Timestamp), ShouldBeTrue)
				So(out[0].Power, ShouldEqual, 3)
			})
		})

		Convey("When a series is saved", func() {
			in := sampleSeries(loc)
			So(s.SaveSeries(ctx, in), ShouldBeNil)

			Convey("Then it loads back with nulls and blocks intact", func() {
				out, err := s.LoadSeries(ctx, "42")
				So(err, ShouldBeNil)
				So(out.Len(), ShouldEqual, in.Len())
				for i := range in.Samples {
					So(out.Samples[i].Timestamp.Equal(in.Samples[i].Timestamp), ShouldBeTrue)
					So(out.Samples[i].Block, ShouldEqual, in.Samples[i].Block)
					So(out.Samples[i].Valid, ShouldEqual, in.Samples[i].Valid)
				}
				So(out.Samples[3].Power, ShouldEqual, 3.25)
			})

			Convey("Then the file uses the processed layout", func() {
				data, err := os.ReadFile(filepath.Join(dir, "processed", "processed_solar_plant_42.csv"))
				So(err, ShouldBeNil)
				So(string(data), ShouldStartWith, "datetime,power,tb\n2024-07-01 23:30:00+05:30,0.25,95\n")
			})
		})

		Convey("When a processed file has no offsets", func() {
			legacy := "datetime,power,tb\n2024-07-01 23:30:00,0.25,95\n2024-07-01 23:45:00,,96\n"
			So(os.MkdirAll(filepath.Join(dir, "processed"), 0o755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(dir, "processed", "processed_solar_plant_5.csv"), []byte(legacy), 0o644), ShouldBeNil)

			Convey("Then wall times are read in the store location", func() {
				out, err := s.LoadSeries(ctx, "5")
				So(err, ShouldBeNil)
				So(out.Len(), ShouldEqual, 2)
				So(out.Samples[0].Timestamp.Equal(time.Date(2024, 7, 1, 23, 30, 0, 0, loc)), ShouldBeTrue)
				So(out.Samples[1].Valid, ShouldBeFalse)
			})
		})

		Convey("When a series crossing a DST fall-back is saved", func() {
			berlin, err := time.LoadLocation("Europe/Berlin")
			So(err, ShouldBeNil)
			bs := repository.NewFileStore(dir, repository.WithLocation(berlin))
			in := &model.Series{PlantID: "8"}
			start := time.Date(2024, 10, 26, 23, 45, 0, 0, time.UTC)
			for i := 0; i < 6; i++ {
				ts := start.Add(time.Duration(i) * model.SlotDuration).In(berlin)
				in.Samples = append(in.Samples, model.Sample{Timestamp: ts, Block: timeblock.Of(ts), Power: float64(i), Valid: true})
			}
			So(bs.SaveSeries(ctx, in), ShouldBeNil)

			Convey("Then the repeated hour reloads onto distinct instants", func() {
				out, err := bs.LoadSeries(ctx, "8")
				So(err, ShouldBeNil)
				So(out.Len(), ShouldEqual, 6)
				for i := range in.Samples {
					So(out.Samples[i].Timestamp.Equal(in.Samples[i].Timestamp), ShouldBeTrue)
				}
			})
		})

		Convey("When a model is saved", func() {
			So(s.SaveModel(ctx, sampleModel()), ShouldBeNil)

			Convey("Then it is written under its horizon in block order", func() {
				data, err := os.ReadFile(filepath.Join(dir, "models", "ewma_models", "day_ahead", "day_ahead_model_42.csv"))
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "tb,power\n1,0\n40,12.5\n96,0.125\n")
			})

			Convey("Then it loads back", func() {
				m, err := s.LoadModel(ctx, sampleModel().Key)
				So(err, ShouldBeNil)
				So(m.Values, ShouldResemble, sampleModel().Values)
				So(m.TrainedAt.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When a model file has a bad block", func() {
			path := s.ModelPath(sampleModel().Key)
			So(os.MkdirAll(filepath.Dir(path), 0o755), ShouldBeNil)
			So(os.WriteFile(path, []byte("tb,power\n97,1\n"), 0o600), ShouldBeNil)

			_, err := s.LoadModel(ctx, sampleModel().Key)
			So(errors.Is(err, repository.ErrBadRecord), ShouldBeTrue)
		})
	})
}

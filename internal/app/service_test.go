package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/solcast/internal/adapters/repository"
	service "github.com/okian/solcast/internal/app"
	"github.com/okian/solcast/internal/domain/capacity"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/synthetic"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	cycleStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleNow   = time.Date(2024, 3, 12, 10, 7, 30, 0, time.UTC)
)

func fixedClock() time.Time { return cycleNow }

func newRegistry(t *testing.T) *capacity.Registry {
	t.Helper()
	reg, err := capacity.NewRegistry(
		capacity.Profile{PlantID: "1", AVC: 40},
		capacity.Profile{PlantID: "2", AVC: 60},
		capacity.Profile{PlantID: "3", AVC: 30},
	)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

// seed fills plants 1, 2 and the aggregated pseudo-plant with eleven days of
// readings ending at midnight before cycleNow. Plant 3 has no data.
func seed(store *repository.MemoryStore) {
	cfg := synthetic.Config{Start: cycleStart, Days: 11, Jitter: time.Minute, DropRate: 0.02, DuplicateRate: 0.01, SpikeRate: 0.01}
	cfg.Seed = 1
	one := synthetic.New(cfg).Readings(40)
	cfg.Seed = 2
	two := synthetic.New(cfg).Readings(60)
	store.PutReadings("1", one)
	store.PutReadings("2", two)
	store.PutReadings(model.AggregatedPlantID, synthetic.Sum(5*time.Minute, one, two))
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(newRegistry(t), repository.NewMemoryStore())

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["plants"], ShouldEqual, 3)
			So(stats["horizons"], ShouldResemble, []string{"intraday", "vstf", "day_ahead"})
			So(svc.Location(), ShouldEqual, time.UTC)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(newRegistry(t), repository.NewMemoryStore(),
			service.WithWorkerCount(8),
			service.WithQueueSize(50),
			service.WithHorizons(model.HorizonDayAhead),
		)

		Convey("Then the options are applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50)
			So(stats["horizons"], ShouldResemble, []string{"day_ahead"})
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(newRegistry(t), repository.NewMemoryStore(), service.WithWorkerCount(2))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When running a cycle before starting", func() {
			_, err := svc.RunCycle(ctx)

			Convey("Then it is refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When starting and stopping the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.GetStats()["queueLength"], ShouldEqual, 0)

			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_ProcessPlant(t *testing.T) {
	ctx := context.Background()

	Convey("Given raw readings in a memory store", t, func() {
		store := repository.NewMemoryStore()
		seed(store)
		svc := service.New(newRegistry(t), store, service.WithSeriesStore(store), service.WithModelStore(store))

		Convey("When a plant is processed", func() {
			So(svc.ProcessPlant(ctx, "1"), ShouldBeNil)
			series, err := store.LoadSeries(ctx, "1")
			So(err, ShouldBeNil)

			Convey("Then the saved series is regular and within capacity", func() {
				So(series.Len(), ShouldBeGreaterThan, 10*model.BlocksPerDay)
				for i, smp := range series.Samples {
					if i > 0 {
						So(smp.Timestamp.Sub(series.Samples[i-1].Timestamp), ShouldEqual, model.SlotDuration)
					}
					if smp.Valid {
						So(smp.Power, ShouldBeBetweenOrEqual, 0, 40)
					}
				}
			})

			Convey("Then night slots are zero", func() {
				for _, smp := range series.Samples {
					if smp.Block <= 4 || smp.Block >= 90 {
						So(smp.Valid, ShouldBeTrue)
						So(smp.Power, ShouldEqual, 0)
					}
				}
			})
		})

		Convey("When a plant has no raw data", func() {
			err := svc.ProcessPlant(ctx, "3")

			Convey("Then it is a skip", func() {
				So(errors.Is(err, model.ErrDataAbsent), ShouldBeTrue)
				So(model.StatusOf(err), ShouldEqual, model.StatusSkip)
			})
		})

		Convey("When a plant has a single reading", func() {
			store.PutReadings("2", []model.Reading{{Timestamp: cycleStart, Power: 1}})
			err := svc.ProcessPlant(ctx, "2")

			Convey("Then it is a per-plant error", func() {
				So(err, ShouldNotBeNil)
				So(model.StatusOf(err), ShouldEqual, model.StatusError)
			})
		})

		Convey("When an unregistered plant has data", func() {
			store.PutReadings("99", []model.Reading{{Timestamp: cycleStart, Power: 1}, {Timestamp: cycleStart.Add(time.Hour), Power: 2}})
			err := svc.ProcessPlant(ctx, "99")

			Convey("Then the registry error is returned", func() {
				So(errors.Is(err, capacity.ErrUnknownPlant), ShouldBeTrue)
			})
		})
	})
}

func TestService_TrainAndForecastPlant(t *testing.T) {
	ctx := context.Background()

	Convey("Given a processed plant", t, func() {
		store := repository.NewMemoryStore()
		seed(store)
		svc := service.New(newRegistry(t), store,
			service.WithSeriesStore(store),
			service.WithModelStore(store),
			service.WithClock(fixedClock),
			service.WithOwnerID("owner-7"),
		)
		So(svc.ProcessPlant(ctx, "1"), ShouldBeNil)

		Convey("When it is trained and forecast for day-ahead", func() {
			So(svc.TrainPlant(ctx, model.HorizonDayAhead, "1"), ShouldBeNil)
			b, err := svc.ForecastPlant(ctx, "run-1", model.HorizonDayAhead, 1, "1")

			Convey("Then tomorrow's 96 slots are emitted", func() {
				So(err, ShouldBeNil)
				So(b.Records, ShouldHaveLength, model.BlocksPerDay)
				So(b.Records[0].Timestamp.Equal(time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
				for _, r := range b.Records {
					So(r.OwnerID, ShouldEqual, "owner-7")
					So(r.Revision, ShouldEqual, 1)
					if r.Valid {
						So(r.Forecast, ShouldBeBetweenOrEqual, 0, 40)
					}
				}
			})

			Convey("Then the batch is served as the latest", func() {
				latest, ok := svc.LatestPlant(model.HorizonDayAhead, "1")
				So(ok, ShouldBeTrue)
				So(latest.RunID, ShouldEqual, "run-1")
			})
		})

		Convey("When a plant was never processed", func() {
			err := svc.TrainPlant(ctx, model.HorizonIntraday, "2")
			So(errors.Is(err, model.ErrDataAbsent), ShouldBeTrue)
		})

		Convey("When a plant has no model", func() {
			_, err := svc.ForecastPlant(ctx, "run-1", model.HorizonIntraday, 3, "1")
			So(errors.Is(err, model.ErrDataAbsent), ShouldBeTrue)
			_, ok := svc.LatestPlant(model.HorizonIntraday, "1")
			So(ok, ShouldBeFalse)
		})
	})
}

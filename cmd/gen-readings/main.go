package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/okian/solcast/internal/adapters/repository"
	"github.com/okian/solcast/internal/domain/capacity"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/synthetic"
	"github.com/okian/solcast/pkg/logger"
)

// Default generator constants.
const (
	defaultPlants   = 5
	defaultDays     = 14
	defaultMinAVC   = 20
	defaultAVCStep  = 15
	defaultDrop     = 0.05
	defaultDup      = 0.01
	defaultSpike    = 0.002
	defaultTimezone = "Asia/Kolkata"
	firstPlantID    = 101
	infoFilePerm    = 0o644
)

func main() {
	var (
		dir      = flag.String("dir", "data", "Data directory to write raw/ and config/ into")
		plants   = flag.Int("plants", defaultPlants, "Number of plants to generate")
		days     = flag.Int("days", defaultDays, "Days of history ending now")
		tz       = flag.String("tz", defaultTimezone, "Plant timezone")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		drop     = flag.Float64("drop", defaultDrop, "Fraction of readings to drop")
		dup      = flag.Float64("dup", defaultDup, "Fraction of readings to duplicate")
		spike    = flag.Float64("spike", defaultSpike, "Fraction of daylight readings above capacity")
		logLevel = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	if err := run(*dir, *plants, *days, *tz, *seed, *drop, *dup, *spike, *logLevel); err != nil {
		os.Stderr.WriteString("gen-readings: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(dir string, plants, days int, tz string, seed uint64, drop, dup, spike float64, level string) error {
	if err := logger.Init(); err != nil {
		return err
	}
	if err := logger.SetLevelString(level); err != nil {
		return err
	}
	log := logger.Get().Named("gen-readings")
	ctx := context.Background()

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", tz, err)
	}
	now := time.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -days)

	store := repository.NewFileStore(dir, repository.WithLocation(loc))
	profiles := make([]capacity.Profile, 0, plants)
	all := make([][]model.Reading, 0, plants)
	for i := 0; i < plants; i++ {
		p := capacity.Profile{
			PlantID: strconv.Itoa(firstPlantID + i),
			AVC:     float64(defaultMinAVC + defaultAVCStep*i),
		}
		gen := synthetic.New(synthetic.Config{
			Start:         start,
			Days:          days + 1,
			Jitter:        time.Minute,
			DropRate:      drop,
			DuplicateRate: dup,
			SpikeRate:     spike,
			Seed:          seed + uint64(i),
		})
		readings := trimFuture(gen.Readings(p.AVC), now)
		if err := store.WriteReadings(ctx, p.PlantID, readings); err != nil {
			return err
		}
		log.Info(ctx, "wrote raw readings",
			logger.String("plant_id", p.PlantID),
			logger.Float64("avc", p.AVC),
			logger.Int("readings", len(readings)))
		profiles = append(profiles, p)
		all = append(all, readings)
	}

	agg := synthetic.Sum(model.SlotDuration, all...)
	if err := store.WriteReadings(ctx, model.AggregatedPlantID, agg); err != nil {
		return err
	}

	info := filepath.Join(dir, "config", "solar_plants_info.csv")
	if err := os.MkdirAll(filepath.Dir(info), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(info, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, infoFilePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := capacity.WriteCSV(f, profiles); err != nil {
		return err
	}
	log.Info(ctx, "wrote plant info", logger.String("path", info), logger.Int("plants", len(profiles)))
	return nil
}

// trimFuture drops readings after now, so the newest data looks live.
func trimFuture(readings []model.Reading, now time.Time) []model.Reading {
	out := readings[:0]
	for _, r := range readings {
		if !r.Timestamp.After(now) {
			out = append(out, r)
		}
	}
	return out
}

// Package synthetic generates plausible raw solar readings for local runs and
// tests: a clear-sky bell curve scaled by daily cloud cover, irregular
// sampling, night-time sensor noise, dropped and duplicated readings and the
// occasional spike above capacity.
package synthetic

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/okian/solcast/internal/domain/model"
)

// Defaults for Config fields left at zero.
const (
	defaultInterval = 5 * time.Minute
	defaultSunrise  = 6 * time.Hour
	defaultSunset   = 18*time.Hour + 30*time.Minute
	peakFactor      = 0.85
	minCloudFactor  = 0.35
	nightNoise      = 0.4
	spikeFactor     = 1.15
)

// Config controls a generated series.
type Config struct {
	Start    time.Time
	Days     int
	Interval time.Duration
	// Jitter is the largest shift applied to a nominal sample time.
	Jitter time.Duration
	// Sunrise and Sunset are offsets from local midnight.
	Sunrise time.Duration
	Sunset  time.Duration

	DropRate      float64
	DuplicateRate float64
	SpikeRate     float64
	Seed          uint64
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.Sunrise <= 0 {
		c.Sunrise = defaultSunrise
	}
	if c.Sunset <= c.Sunrise {
		c.Sunset = defaultSunset
	}
	if c.Days <= 0 {
		c.Days = 1
	}
	return c
}

// Generator produces readings deterministically from its seed.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New returns a Generator for cfg.
func New(cfg Config) *Generator {
	cfg = cfg.withDefaults()
	return &Generator{cfg: cfg, rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))}
}

// Readings returns an irregular series for a plant of capacity avc, in time
// order apart from injected duplicates.
func (g *Generator) Readings(avc float64) []model.Reading {
	cfg := g.cfg
	end := cfg.Start.AddDate(0, 0, cfg.Days)
	out := make([]model.Reading, 0, int(end.Sub(cfg.Start)/cfg.Interval))

	var day time.Time
	cloud := 1.0
	for t := cfg.Start; t.Before(end); t = t.Add(cfg.Interval) {
		if d := midnight(t); !d.Equal(day) {
			day = d
			cloud = minCloudFactor + (1-minCloudFactor)*g.rng.Float64()
		}
		if g.rng.Float64() < cfg.DropRate {
			continue
		}

		ts := t
		if cfg.Jitter > 0 {
			ts = ts.Add(time.Duration(g.rng.Int64N(int64(2*cfg.Jitter))) - cfg.Jitter)
		}
		r := model.Reading{Timestamp: ts, Power: g.power(ts, avc, cloud)}
		out = append(out, r)
		if g.rng.Float64() < cfg.DuplicateRate {
			dup := r
			dup.Power *= 1 + 0.05*g.rng.NormFloat64()
			out = append(out, dup)
		}
	}
	return out
}

func (g *Generator) power(ts time.Time, avc, cloud float64) float64 {
	tod := ts.Sub(midnight(ts))
	if tod <= g.cfg.Sunrise || tod >= g.cfg.Sunset {
		return -nightNoise * g.rng.Float64()
	}
	if g.rng.Float64() < g.cfg.SpikeRate {
		return avc * spikeFactor
	}
	phase := float64(tod-g.cfg.Sunrise) / float64(g.cfg.Sunset-g.cfg.Sunrise)
	clear := avc * peakFactor * math.Sin(math.Pi*phase)
	p := clear * cloud * (1 + 0.05*g.rng.NormFloat64())
	return math.Max(p, 0)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Sum adds several plants' readings slot by slot into one series, the way the
// aggregated pseudo-plant is fed. Timestamps are floored to step.
func Sum(step time.Duration, plants ...[]model.Reading) []model.Reading {
	totals := map[int64]float64{}
	var keys []int64
	var loc *time.Location
	for _, readings := range plants {
		for _, r := range readings {
			if math.IsNaN(r.Power) {
				continue
			}
			if loc == nil {
				loc = r.Timestamp.Location()
			}
			k := r.Timestamp.Truncate(step).Unix()
			if _, ok := totals[k]; !ok {
				keys = append(keys, k)
			}
			totals[k] += r.Power
		}
	}
	slices.Sort(keys)
	out := make([]model.Reading, len(keys))
	for i, k := range keys {
		out[i] = model.Reading{Timestamp: time.Unix(k, 0).In(loc), Power: totals[k]}
	}
	return out
}

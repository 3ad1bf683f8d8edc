// Package ewma trains per-time-block exponentially weighted models.
package ewma

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
	"github.com/okian/solcast/pkg/logger"
)

// Training defaults.
const (
	DefaultDays          = 9
	DefaultAlpha         = 0.3
	DefaultRecentSamples = 5
	DefaultRecentWeight  = 0.7
	DefaultLiveWindow    = 150 * time.Minute
)

// Trainer builds EWMAModels from sanitized series. It holds no per-plant
// state and is safe for concurrent use.
type Trainer struct {
	days          int
	alpha         float64
	recentSamples int
	recentWeight  float64
	liveWindow    time.Duration
	log           logger.Logger
}

// NewTrainer returns a Trainer with defaults overridden by opts.
func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{
		days:          DefaultDays,
		alpha:         DefaultAlpha,
		recentSamples: DefaultRecentSamples,
		recentWeight:  DefaultRecentWeight,
		liveWindow:    DefaultLiveWindow,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train computes the model for key from s as of now.
//
// Only samples whose calendar day is no earlier than the last sample's day
// minus the configured days are used. Each block gets the EWMA of its values in
// time order; nulls are skipped but still age the weights. When the last
// sample is within the live window of now every non-zero block is blended
// towards the mean of the trailing recent samples.
//
// A nil or empty series yields model.ErrDataAbsent.
func (t *Trainer) Train(s *model.Series, key model.ModelKey, now time.Time) (*model.EWMAModel, error) {
	last, ok := lastSample(s)
	if !ok {
		t.log.Warn(context.Background(), "no processed series, skipping training",
			logger.String("plant_id", key.PlantID),
			logger.String("horizon", string(key.Horizon)))
		return nil, fmt.Errorf("train %s: %w", key, model.ErrDataAbsent)
	}

	window := t.trailing(s.Samples, last.Timestamp)

	byBlock := make(map[int][]model.Sample, model.BlocksPerDay)
	for _, smp := range window {
		byBlock[smp.Block] = append(byBlock[smp.Block], smp)
	}

	values := make(map[int]float64, len(byBlock))
	for block, samples := range byBlock {
		if v, ok := Weighted(samples, t.alpha); ok {
			values[block] = v
		}
	}

	m := &model.EWMAModel{Key: key, Values: values, TrainedAt: now}

	if now.Sub(last.Timestamp) >= t.liveWindow {
		return m, nil
	}
	recent, ok := RecentMean(window, t.recentSamples)
	if !ok {
		return m, nil
	}
	for block, v := range values {
		if v != 0 {
			values[block] = (1-t.recentWeight)*v + t.recentWeight*recent
		}
	}
	m.Blended = true
	return m, nil
}

func (t *Trainer) trailing(samples []model.Sample, last time.Time) []model.Sample {
	start := timeblock.Day(timeblock.Midnight(last).AddDate(0, 0, -t.days))
	for i, smp := range samples {
		if !timeblock.Day(smp.Timestamp).Before(start) {
			return samples[i:]
		}
	}
	return nil
}

func lastSample(s *model.Series) (model.Sample, bool) {
	if s == nil {
		return model.Sample{}, false
	}
	return s.Last()
}

// Weighted returns the adjusted exponentially weighted mean of samples, the
// newest carrying weight 1 and each older position (1-alpha) times less.
// Missing samples keep their position but contribute nothing. ok is false when
// every sample is missing.
func Weighted(samples []model.Sample, alpha float64) (float64, bool) {
	var num, den float64
	w := 1.0
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Valid && !math.IsNaN(samples[i].Power) {
			num += w * samples[i].Power
			den += w
		}
		w *= 1 - alpha
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// RecentMean averages the valid values among the last n samples.
func RecentMean(samples []model.Sample, n int) (float64, bool) {
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	var sum float64
	var count int
	for _, smp := range samples {
		if smp.Valid {
			sum += smp.Power
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/solcast/internal/adapters/mq/queue"
	"github.com/okian/solcast/internal/adapters/repository"
	"github.com/okian/solcast/internal/adapters/sink"
	"github.com/okian/solcast/internal/domain/daylight"
	"github.com/okian/solcast/internal/domain/forecast"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/regularize"
	"github.com/okian/solcast/internal/domain/revision"
	"github.com/okian/solcast/internal/domain/types"
	"github.com/okian/solcast/pkg/logger"
	"github.com/okian/solcast/pkg/metrics"
)

// Pipeline stages.
const (
	StageProcess  = "process"
	StageTrain    = "train"
	StageForecast = "forecast"
)

// plantWork runs one stage for one plant.
type plantWork func(ctx context.Context, plantID string) error

// ProcessPlant regularizes and sanitizes the raw readings of a plant and saves
// the processed series. A plant without raw data is skipped.
func (s *Service) ProcessPlant(ctx context.Context, plantID string) error {
	readings, err := s.raw.Readings(ctx, plantID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// Upstream failures are not fatal to the cycle.
		return fmt.Errorf("raw readings for plant %s: %w: %w", plantID, model.ErrDataAbsent, err)
	}
	if len(readings) == 0 {
		return fmt.Errorf("raw readings for plant %s are empty: %w", plantID, model.ErrDataAbsent)
	}
	for i := range readings {
		readings[i].Timestamp = readings[i].Timestamp.In(s.loc)
	}

	series, err := regularize.Regularize(plantID, readings)
	if err != nil {
		return err
	}

	avc, ok, err := s.registry.Ceiling(plantID)
	if err != nil {
		return err
	}
	rep := daylight.Sanitize(series, daylight.Ceiling{AVC: avc, Enabled: ok})
	metrics.UpdateDaylightWindow(plantID, rep.Window.Sunrise, rep.Window.Sunset)
	metrics.RecordSanitized("zeroed", rep.Zeroed)
	metrics.RecordSanitized("nulled", rep.Nulled)
	metrics.RecordSanitized("clipped", rep.Clipped)

	if err := s.series.SaveSeries(ctx, series); err != nil {
		return fmt.Errorf("save series of plant %s: %w", plantID, err)
	}

	s.logger.Debug(ctx, "plant processed",
		logger.String("plant_id", plantID),
		logger.Int("samples", series.Len()),
		logger.Int("sunrise", rep.Window.Sunrise),
		logger.Int("sunset", rep.Window.Sunset),
		logger.Int("nulled", rep.Nulled),
		logger.Int("clipped", rep.Clipped),
	)
	return nil
}

// TrainPlant fits the EWMA model of one plant for horizon h from its
// processed series.
func (s *Service) TrainPlant(ctx context.Context, h model.Horizon, plantID string) error {
	series, err := s.series.LoadSeries(ctx, plantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("processed series for plant %s: %w", plantID, model.ErrDataAbsent)
		}
		return err
	}

	m, err := s.trainer.Train(series, model.ModelKey{Horizon: h, PlantID: plantID}, s.clock())
	if err != nil {
		return err
	}
	if err := s.models.SaveModel(ctx, m); err != nil {
		return fmt.Errorf("save model %s: %w", m.Key, err)
	}
	metrics.RecordTrainedModel(string(h), m.Blended)
	return nil
}

// ForecastPlant generates the target-day forecast of one plant for horizon h
// and hands it to the sink. A plant without a model is skipped.
func (s *Service) ForecastPlant(ctx context.Context, runID string, h model.Horizon, rev int, plantID string) (sink.Batch, error) {
	m, err := s.models.LoadModel(ctx, model.ModelKey{Horizon: h, PlantID: plantID})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return sink.Batch{}, err
	}

	now := s.clock().In(s.loc)
	records, err := s.generator.Generate(m, forecast.Request{
		OwnerID:  s.ownerID,
		PlantID:  plantID,
		Horizon:  h,
		Revision: rev,
		Now:      now,
	})
	if err != nil {
		return sink.Batch{}, err
	}

	b := sink.Batch{
		RunID:     runID,
		Horizon:   h,
		PlantID:   plantID,
		Revision:  rev,
		CreatedAt: now,
		Records:   records,
	}
	if err := s.sink.Write(ctx, b); err != nil {
		return sink.Batch{}, fmt.Errorf("write forecast of plant %s: %w", plantID, err)
	}
	_ = s.latest.Write(ctx, b)
	metrics.RecordForecastRows(string(h), len(records))
	return b, nil
}

// RunCycle runs one full pipeline cycle: process every plant, train each
// horizon, then forecast each horizon at its current revision. Within a stage
// the registered plants run concurrently on the worker pool and the aggregated
// pseudo-plant runs once they have all finished.
func (s *Service) RunCycle(ctx context.Context) (types.RunSummary, error) {
	if !s.runMu.TryLock() {
		return types.RunSummary{}, ErrCycleRunning
	}
	defer s.runMu.Unlock()

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return types.RunSummary{}, ErrNotStarted
	}

	start := s.clock()
	now := start.In(s.loc)
	sum := types.RunSummary{
		RunID:          uuid.NewString(),
		StartedAt:      start,
		PredictionTime: revision.PredictionTime(now),
		Revisions:      make(map[string]int, len(s.horizons)),
		Counts:         make(map[string]map[string]int),
	}
	log := s.logger.With(logger.String("run_id", sum.RunID))
	log.Info(ctx, "pipeline cycle started", logger.Time("prediction_time", sum.PredictionTime))

	var results []model.Result
	collect := func(rs []model.Result, err error) error {
		results = append(results, rs...)
		return err
	}

	err := collect(s.stage(ctx, sum.RunID, StageProcess, "", s.ProcessPlant))
	for _, h := range s.horizons {
		if err != nil {
			break
		}
		err = collect(s.stage(ctx, sum.RunID, StageTrain, h, func(ctx context.Context, id string) error {
			return s.TrainPlant(ctx, h, id)
		}))
	}
	for _, h := range s.horizons {
		if err != nil {
			break
		}
		rev := revision.For(h, sum.PredictionTime)
		sum.Revisions[string(h)] = rev
		metrics.UpdateCurrentRevision(string(h), rev)
		err = collect(s.stage(ctx, sum.RunID, StageForecast, h, func(ctx context.Context, id string) error {
			_, ferr := s.ForecastPlant(ctx, sum.RunID, h, rev, id)
			return ferr
		}))
	}

	sum.Results = make([]types.TaskResult, 0, len(results))
	failed := 0
	for _, r := range results {
		key := r.Stage
		if r.Horizon != "" {
			key += "/" + string(r.Horizon)
		}
		if sum.Counts[key] == nil {
			sum.Counts[key] = make(map[string]int, 3)
		}
		sum.Counts[key][string(r.Status)]++
		if r.Status == model.StatusError {
			failed++
		}
		sum.Results = append(sum.Results, types.Result(r))
	}
	sum.FinishedAt = s.clock()

	outcome := "success"
	switch {
	case err != nil:
		outcome = "aborted"
	case failed > 0:
		outcome = "partial"
	}
	metrics.RecordCycle(outcome, sum.FinishedAt.Sub(start))

	s.mu.Lock()
	s.runs++
	s.lastRun = &sum
	s.mu.Unlock()

	if err != nil {
		log.Error(ctx, "pipeline cycle aborted", logger.Error(err))
		return sum, err
	}
	log.Info(ctx, "pipeline cycle finished",
		logger.String("outcome", outcome),
		logger.Int("tasks", len(results)),
		logger.Int("failed", failed),
		logger.Duration("took", sum.FinishedAt.Sub(start)),
	)
	return sum, nil
}

// stage runs work for every registered plant, waits for all of them and then
// runs it for the aggregated pseudo-plant.
func (s *Service) stage(ctx context.Context, runID, stage string, h model.Horizon, work plantWork) ([]model.Result, error) {
	results, err := s.fanOut(ctx, runID, stage, h, s.registry.PlantIDs(), work)
	if err != nil {
		return results, err
	}
	agg, err := s.fanOut(ctx, runID, stage, h, []string{model.AggregatedPlantID}, work)
	return append(results, agg...), err
}

// fanOut enqueues one task per plant and joins their results. Results come
// back in completion order.
func (s *Service) fanOut(ctx context.Context, runID, stage string, h model.Horizon, plantIDs []string, work plantWork) ([]model.Result, error) {
	done := make(chan model.Result, len(plantIDs))
	for _, id := range plantIDs {
		task := model.Task{
			ID:      uuid.NewString(),
			RunID:   runID,
			PlantID: id,
			Stage:   stage,
			Horizon: h,
			Do: func(ctx context.Context) error {
				return work(ctx, id)
			},
			Done: done,
		}
		if !s.queue.Enqueue(ctx, task) {
			done <- model.Result{
				TaskID:  task.ID,
				PlantID: id,
				Stage:   stage,
				Horizon: h,
				Status:  model.StatusError,
				Err:     fmt.Errorf("plant %s: %w", id, queue.ErrRejected),
			}
		}
	}

	results := make([]model.Result, 0, len(plantIDs))
	for range plantIDs {
		select {
		case r := <-done:
			results = append(results, r)
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
	return results, nil
}

// Run runs a cycle now and then every interval until ctx is cancelled. A
// non-positive interval runs a single cycle.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if _, err := s.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleRunning) {
		if ctx.Err() != nil || errors.Is(err, ErrNotStarted) {
			return err
		}
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil {
				if errors.Is(err, ErrCycleRunning) {
					s.logger.Warn(ctx, "previous cycle still running, tick skipped")
					continue
				}
				if ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

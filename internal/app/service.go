// Package service wires the forecasting pipeline: it fans plant tasks out over
// the worker pool, joins them and exposes the latest results to the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/okian/solcast/internal/adapters/mq/queue"
	"github.com/okian/solcast/internal/adapters/mq/worker"
	"github.com/okian/solcast/internal/adapters/repository"
	"github.com/okian/solcast/internal/adapters/sink"
	"github.com/okian/solcast/internal/domain/ewma"
	"github.com/okian/solcast/internal/domain/forecast"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/types"
	"github.com/okian/solcast/pkg/logger"
	"github.com/okian/solcast/pkg/metrics"
)

const defaultQueueSize = 1024

// Registry is the read-only capacity registry the pipeline needs.
type Registry interface {
	forecast.CapacityLookup
	PlantIDs() []string
}

// Service runs pipeline cycles.
type Service struct {
	mu    sync.RWMutex
	runMu sync.Mutex

	registry  Registry
	raw       repository.RawSource
	series    repository.SeriesStore
	models    repository.ModelStore
	sink      sink.Sink
	latest    *sink.Latest
	trainer   *ewma.Trainer
	generator *forecast.Generator

	queue *queue.InMemoryQueue
	pool  *worker.Pool

	// Configuration
	workerCount int
	queueSize   int
	horizons    []model.Horizon
	ownerID     string
	loc         *time.Location
	clock       func() time.Time

	// State
	started bool
	runs    int
	lastRun *types.RunSummary

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the task queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHorizons limits the horizons trained and forecast each cycle.
func WithHorizons(hs ...model.Horizon) Option {
	return func(s *Service) {
		if len(hs) > 0 {
			s.horizons = hs
		}
	}
}

// WithOwnerID sets the owner attached to every forecast row.
func WithOwnerID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.ownerID = id
		}
	}
}

// WithLocation sets the plants' wall clock.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithTrainer replaces the default EWMA trainer.
func WithTrainer(t *ewma.Trainer) Option {
	return func(s *Service) {
		if t != nil {
			s.trainer = t
		}
	}
}

// WithSeriesStore sets where processed series are kept.
func WithSeriesStore(st repository.SeriesStore) Option {
	return func(s *Service) {
		if st != nil {
			s.series = st
		}
	}
}

// WithModelStore sets where trained models are kept.
func WithModelStore(st repository.ModelStore) Option {
	return func(s *Service) {
		if st != nil {
			s.models = st
		}
	}
}

// WithSink sets the forecast destination. The latest batches are always kept
// in memory for the API in addition.
func WithSink(sk sink.Sink) Option {
	return func(s *Service) {
		if sk != nil {
			s.sink = sk
		}
	}
}

// New constructs a Service reading raw data from raw. Series and models
// default to an in-memory store and forecasts to Discard.
func New(registry Registry, raw repository.RawSource, opts ...Option) *Service {
	mem := repository.NewMemoryStore()
	s := &Service{
		registry:    registry,
		raw:         raw,
		series:      mem,
		models:      mem,
		sink:        sink.Discard{},
		latest:      sink.NewLatest(),
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		horizons:    model.Horizons(),
		ownerID:     "solcast",
		loc:         time.UTC,
		clock:       time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.trainer == nil {
		s.trainer = ewma.NewTrainer(ewma.WithLogger(s.logger.Named("trainer")))
	}
	s.generator = forecast.NewGenerator(registry, forecast.WithLogger(s.logger.Named("forecast")))
	return s
}

// Start creates the task queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.WithLogger(s.logger))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "forecast service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("plants", len(s.registry.PlantIDs())),
	)
	return nil
}

// Stop drains the queue and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping forecast service...")
	err := s.pool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "forecast service stopped")
	return err
}

// Latest returns the latest forecast batches of h.
func (s *Service) Latest(h model.Horizon) []sink.Batch {
	return s.latest.Horizon(h)
}

// LatestPlant returns the latest forecast batch of one plant.
func (s *Service) LatestPlant(h model.Horizon, plantID string) (sink.Batch, bool) {
	return s.latest.Get(h, plantID)
}

// LastRun returns the summary of the most recent cycle.
func (s *Service) LastRun() (types.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return types.RunSummary{}, false
	}
	return *s.lastRun, true
}

// Location returns the plants' wall clock.
func (s *Service) Location() *time.Location { return s.loc }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	horizons := make([]string, len(s.horizons))
	for i, h := range s.horizons {
		horizons[i] = string(h)
	}
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"plants":      len(s.registry.PlantIDs()),
		"horizons":    horizons,
		"runs":        s.runs,
		"batches":     s.latest.Len(),
	}
	if s.started {
		n := s.queue.Len(context.Background())
		stats["queueLength"] = n
		metrics.UpdateQueueSize(n)
	}
	if s.lastRun != nil {
		stats["lastRunID"] = s.lastRun.RunID
		stats["lastRunAt"] = s.lastRun.FinishedAt
		stats["lastRunCounts"] = s.lastRun.Counts
	}
	return stats
}

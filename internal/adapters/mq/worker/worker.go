// Package worker runs plant tasks from a queue and reports a tri-state result
// for each one.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/solcast/internal/adapters/mq/queue"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/pkg/logger"
	"github.com/okian/solcast/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Task is what workers read off the queue.
type Task = queue.Task

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
}

// Worker runs tasks until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current task.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for plant tasks.
type InMemoryWorker struct {
	queue Queue
	name  string
	busy  *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		name:     "worker",
		busy:     &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			w.execute(ctx, task)
		}
	}
}

// Shutdown stops the worker after its current task.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// execute runs one task and always delivers its Result.
func (w *InMemoryWorker) execute(ctx context.Context, task Task) { //nolint:gocritic // hugeParam: Task is passed by value for channel semantics
	metrics.UpdateWorkerActiveCount(int(w.busy.Add(1)))
	defer func() { metrics.UpdateWorkerActiveCount(int(w.busy.Add(-1))) }()

	start := time.Now()
	err := w.run(ctx, task)
	res := model.Result{
		TaskID:   task.ID,
		PlantID:  task.PlantID,
		Stage:    task.Stage,
		Horizon:  task.Horizon,
		Status:   model.StatusOf(err),
		Err:      err,
		Duration: time.Since(start),
	}

	metrics.RecordTaskOutcome(task.Stage, string(res.Status))
	metrics.RecordStageLatency(task.Stage, float64(res.Duration.Microseconds())/1000)

	fields := []logger.Field{
		logger.String("task_id", task.ID),
		logger.String("run_id", task.RunID),
		logger.String("plant_id", task.PlantID),
		logger.String("stage", task.Stage),
	}
	if task.Horizon != "" {
		fields = append(fields, logger.String("horizon", string(task.Horizon)))
	}
	switch res.Status {
	case model.StatusSkip:
		w.logger.Warn(ctx, "plant skipped", append(fields, logger.Error(err))...)
	case model.StatusError:
		w.logger.Error(ctx, "plant failed", append(fields, logger.Error(err))...)
	default:
		w.logger.Debug(ctx, "plant done", append(fields, logger.Duration("took", res.Duration))...)
	}

	if task.Done != nil {
		task.Done <- res
	}
}

// run calls task.Do, turning a panic into an error.
func (w *InMemoryWorker) run(ctx context.Context, task Task) (err error) { //nolint:gocritic // hugeParam: see execute
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerPanic()
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	if task.Do == nil {
		return fmt.Errorf("task %s has no work", task.ID)
	}
	return task.Do(ctx)
}

// Pool manages multiple workers reading the same queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a worker pool. A non-positive workerCount picks a default
// from the number of CPUs.
func NewPool(workerCount int, q Queue, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	probe := NewInMemoryWorker(q, opts...)
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  probe.logger,
	}

	busy := &atomic.Int64{}
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(q, append(opts, WithName("worker-"+strconv.Itoa(i)))...)
		w.busy = busy
		pool.workers[i] = w
	}
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}

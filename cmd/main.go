package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/solcast/internal/adapters/http/api"
	"github.com/okian/solcast/internal/adapters/http/swagger"
	"github.com/okian/solcast/internal/adapters/repository"
	"github.com/okian/solcast/internal/adapters/sink"
	app "github.com/okian/solcast/internal/app"
	"github.com/okian/solcast/internal/config"
	"github.com/okian/solcast/internal/domain/capacity"
	"github.com/okian/solcast/internal/domain/ewma"
	"github.com/okian/solcast/pkg/logger"
	"github.com/okian/solcast/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second

	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input)
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "solcast failed", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the pipeline from cfg. With a zero run interval it runs one cycle
// and returns; otherwise it serves the API and repeats cycles until ctx ends.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	horizons, err := cfg.HorizonList()
	if err != nil {
		return err
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	files := repository.NewFileStore(cfg.DataDir,
		repository.WithLocation(loc),
		repository.WithLogger(log.Named("repository")),
	)
	series, models, closeStores, err := openStores(ctx, cfg, files)
	if err != nil {
		return err
	}
	defer closeStores()

	out, closeSink, err := openSink(ctx, cfg, loc)
	if err != nil {
		return err
	}
	defer closeSink()

	trainer := ewma.NewTrainer(
		ewma.WithDays(cfg.TrainDays),
		ewma.WithAlpha(cfg.TrainAlpha),
		ewma.WithRecentSamples(cfg.RecentSamples),
		ewma.WithRecentWeight(cfg.RecentWeight),
		ewma.WithLiveWindow(cfg.LiveWindow),
		ewma.WithLogger(log.Named("trainer")),
	)

	svc := app.New(registry, files,
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithHorizons(horizons...),
		app.WithOwnerID(cfg.OwnerID),
		app.WithLocation(loc),
		app.WithTrainer(trainer),
		app.WithSeriesStore(series),
		app.WithModelStore(models),
		app.WithSink(out),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(ctx, "service shutdown failed", logger.Error(err))
		}
	}()

	if cfg.RunInterval <= 0 {
		_, err := svc.RunCycle(ctx)
		return err
	}

	go startSystemMetricsUpdater(ctx)

	var srv *http.Server
	if cfg.Addr != "" {
		srv = newServer(cfg.Addr, svc)
		go func() {
			log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "HTTP server failed", logger.Error(err))
			}
		}()
	}

	runErr := svc.Run(ctx, cfg.RunInterval)
	log.Info(ctx, "shutting down...")

	if srv != nil {
		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
	}
	return runErr
}

// newServer registers the business API on a fresh mux.
func newServer(addr string, svc *app.Service) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, svc).Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// loadRegistry reads the plant info file; relative paths resolve against the
// data directory.
func loadRegistry(cfg *config.Config) (*capacity.Registry, error) {
	path := cfg.CapacityFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.DataDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plant info: %w", err)
	}
	defer f.Close()
	return capacity.LoadCSV(f)
}

// openStores picks where processed series and models live. Raw readings are
// always read from files.
func openStores(ctx context.Context, cfg *config.Config, files *repository.FileStore) (repository.SeriesStore, repository.ModelStore, func(), error) {
	noop := func() {}
	switch cfg.ModelBackend {
	case config.BackendMemory:
		mem := repository.NewMemoryStore()
		return mem, mem, noop, nil
	case config.BackendRedis:
		client, err := repository.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, noop, err
		}
		store := repository.NewRedisModelStore(client,
			repository.WithKeyPrefix(cfg.RedisPrefix),
			repository.WithLogger(logger.Named("redis")),
		)
		return files, store, func() { _ = client.Close() }, nil
	default:
		return files, files, noop, nil
	}
}

// openSink picks the forecast destination.
func openSink(ctx context.Context, cfg *config.Config, loc *time.Location) (sink.Sink, func(), error) {
	noop := func() {}
	switch cfg.Sink {
	case config.BackendNone:
		return sink.Discard{}, noop, nil
	case config.BackendPostgres:
		pg, err := sink.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, noop, err
		}
		return pg, func() { _ = pg.Close() }, nil
	default:
		return sink.NewFile(cfg.DataDir, loc), noop, nil
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		// Calculate average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

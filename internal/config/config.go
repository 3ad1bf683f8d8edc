// Package config defines service configuration and its loading.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/okian/solcast/internal/domain/ewma"
	"github.com/okian/solcast/internal/domain/model"
)

// Backends accepted by ModelBackend and Sink.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080". Empty disables
	// the HTTP API.
	Addr string `koanf:"addr"`

	// Timezone is the plants' wall clock; blocks and target days use it.
	Timezone string `koanf:"timezone"`

	// OwnerID is attached to every forecast row.
	OwnerID string `koanf:"owner_id"`

	// DataDir holds raw/, processed/, models/ and forecasts/.
	DataDir string `koanf:"data_dir"`

	// CapacityFile is the plant info CSV; relative paths resolve against DataDir.
	CapacityFile string `koanf:"capacity_file"`

	// WorkerCount sets the number of plant workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory task queue.
	QueueSize int `koanf:"queue_size"`

	// Horizons lists the horizons trained and forecast each cycle.
	Horizons []string `koanf:"horizons"`

	TrainDays     int           `koanf:"train_days"`
	TrainAlpha    float64       `koanf:"train_alpha"`
	RecentSamples int           `koanf:"recent_samples"`
	RecentWeight  float64       `koanf:"recent_weight"`
	LiveWindow    time.Duration `koanf:"live_window"`

	// RunInterval repeats the pipeline; zero runs one cycle and exits.
	RunInterval time.Duration `koanf:"run_interval"`

	// ModelBackend is one of file, memory or redis.
	ModelBackend string `koanf:"model_backend"`
	RedisAddr    string `koanf:"redis_addr"`
	RedisPrefix  string `koanf:"redis_prefix"`

	// Sink is one of file, postgres or none.
	Sink        string `koanf:"sink"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	horizons := make([]string, 0, len(model.Horizons()))
	for _, h := range model.Horizons() {
		horizons = append(horizons, string(h))
	}
	return &Config{
		LogLevel:      "info",
		Addr:          ":9080",
		Timezone:      "Asia/Kolkata",
		OwnerID:       "solcast",
		DataDir:       "data",
		CapacityFile:  "config/solar_plants_info.csv",
		WorkerCount:   runtime.NumCPU(),
		QueueSize:     1024,
		Horizons:      horizons,
		TrainDays:     ewma.DefaultDays,
		TrainAlpha:    ewma.DefaultAlpha,
		RecentSamples: ewma.DefaultRecentSamples,
		RecentWeight:  ewma.DefaultRecentWeight,
		LiveWindow:    ewma.DefaultLiveWindow,
		RunInterval:   0,
		ModelBackend:  BackendFile,
		RedisAddr:     "localhost:6379",
		RedisPrefix:   "solcast:",
		Sink:          BackendFile,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// HorizonList parses Horizons, dropping duplicates.
func (c *Config) HorizonList() ([]model.Horizon, error) {
	seen := map[model.Horizon]bool{}
	out := make([]model.Horizon, 0, len(c.Horizons))
	for _, s := range c.Horizons {
		h, err := model.ParseHorizon(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out, nil
}

// Validate reports the first invalid field wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case len(c.Horizons) == 0:
		return fmt.Errorf("%w: horizons must not be empty", ErrInvalidConfig)
	case c.TrainDays < 1:
		return fmt.Errorf("%w: train_days must be positive", ErrInvalidConfig)
	case c.TrainAlpha <= 0 || c.TrainAlpha > 1:
		return fmt.Errorf("%w: train_alpha must be in (0,1]", ErrInvalidConfig)
	case c.RecentSamples < 1:
		return fmt.Errorf("%w: recent_samples must be positive", ErrInvalidConfig)
	case c.RecentWeight < 0 || c.RecentWeight > 1:
		return fmt.Errorf("%w: recent_weight must be in [0,1]", ErrInvalidConfig)
	case c.LiveWindow <= 0:
		return fmt.Errorf("%w: live_window must be positive", ErrInvalidConfig)
	case c.RunInterval < 0:
		return fmt.Errorf("%w: run_interval must not be negative", ErrInvalidConfig)
	}

	switch c.ModelBackend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w: model_backend %q", ErrInvalidConfig, ErrUnknownBackend, c.ModelBackend)
	}

	switch c.Sink {
	case BackendFile, BackendNone:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres sink", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w: sink %q", ErrInvalidConfig, ErrUnknownBackend, c.Sink)
	}

	if _, err := c.HorizonList(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

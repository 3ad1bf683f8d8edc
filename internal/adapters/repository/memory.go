package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/pkg/metrics"
)

const memoryStoreName = "memory"

// MemoryStore implements RawSource, SeriesStore and ModelStore in process.
// Values are copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[string][]model.Reading
	series   map[string]*model.Series
	models   map[model.ModelKey]*model.EWMAModel
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings: make(map[string][]model.Reading),
		series:   make(map[string]*model.Series),
		models:   make(map[model.ModelKey]*model.EWMAModel),
	}
}

// PutReadings replaces the raw readings of a plant.
func (s *MemoryStore) PutReadings(plantID string, readings []model.Reading) {
	cp := make([]model.Reading, len(readings))
	copy(cp, readings)
	s.mu.Lock()
	s.readings[plantID] = cp
	s.mu.Unlock()
}

// Readings implements RawSource.
func (s *MemoryStore) Readings(ctx context.Context, plantID string) ([]model.Reading, error) {
	defer observe("readings", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[plantID]
	if !ok {
		return nil, fmt.Errorf("readings for plant %s: %w", plantID, ErrNotFound)
	}
	cp := make([]model.Reading, len(r))
	copy(cp, r)
	return cp, nil
}

// SaveSeries implements SeriesStore.
func (s *MemoryStore) SaveSeries(ctx context.Context, series *model.Series) error {
	defer observe("save_series", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := series.Clone()
	s.mu.Lock()
	s.series[series.PlantID] = cp
	s.mu.Unlock()
	return nil
}

// LoadSeries implements SeriesStore.
func (s *MemoryStore) LoadSeries(ctx context.Context, plantID string) (*model.Series, error) {
	defer observe("load_series", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[plantID]
	if !ok {
		return nil, fmt.Errorf("series for plant %s: %w", plantID, ErrNotFound)
	}
	return series.Clone(), nil
}

// SaveModel implements ModelStore.
func (s *MemoryStore) SaveModel(ctx context.Context, m *model.EWMAModel) error {
	defer observe("save_model", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := cloneModel(m)
	s.mu.Lock()
	s.models[m.Key] = cp
	s.mu.Unlock()
	return nil
}

// LoadModel implements ModelStore.
func (s *MemoryStore) LoadModel(ctx context.Context, key model.ModelKey) (*model.EWMAModel, error) {
	defer observe("load_model", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[key]
	if !ok {
		return nil, fmt.Errorf("model %s: %w", key, ErrNotFound)
	}
	return cloneModel(m), nil
}

// observe records the latency of a memory store operation.
func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(memoryStoreName, op, float64(time.Since(start).Microseconds())/1000)
}

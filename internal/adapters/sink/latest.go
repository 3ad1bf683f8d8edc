package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/solcast/internal/domain/capacity"
	"github.com/okian/solcast/internal/domain/model"
)

// Latest keeps the most recent batch per horizon and plant in memory.
type Latest struct {
	mu      sync.RWMutex
	batches map[model.ModelKey]Batch
}

// NewLatest returns an empty Latest.
func NewLatest() *Latest {
	return &Latest{batches: make(map[model.ModelKey]Batch)}
}

// Write implements Sink.
func (l *Latest) Write(_ context.Context, b Batch) error {
	b.Records = append([]model.ForecastRecord(nil), b.Records...)
	l.mu.Lock()
	l.batches[model.ModelKey{Horizon: b.Horizon, PlantID: b.PlantID}] = b
	l.mu.Unlock()
	return nil
}

// Get returns the latest batch of one plant.
func (l *Latest) Get(h model.Horizon, plantID string) (Batch, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.batches[model.ModelKey{Horizon: h, PlantID: plantID}]
	if !ok {
		return Batch{}, false
	}
	b.Records = append([]model.ForecastRecord(nil), b.Records...)
	return b, true
}

// Horizon returns the latest batches of h in registry plant order.
func (l *Latest) Horizon(h model.Horizon) []Batch {
	l.mu.RLock()
	out := make([]Batch, 0, len(l.batches))
	for k, b := range l.batches {
		if k.Horizon == h {
			out = append(out, b)
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return capacity.LessPlantID(out[i].PlantID, out[j].PlantID) })
	return out
}

// Len returns the number of batches held.
func (l *Latest) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.batches)
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
	"github.com/okian/solcast/pkg/metrics"
)

const redisStoreName = "redis"

// RedisModelStore implements ModelStore on Redis. Each model is one JSON value
// under <prefix>model:<horizon>:<plant_id>.
type RedisModelStore struct {
	client redis.UniversalClient
	opts   options
}

type redisModel struct {
	Values    map[string]float64 `json:"values"`
	TrainedAt time.Time          `json:"trained_at"`
	Blended   bool               `json:"blended"`
}

// NewRedisModelStore wraps an existing client.
func NewRedisModelStore(client redis.UniversalClient, opts ...Option) *RedisModelStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisModelStore{client: client, opts: o}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Key returns the Redis key of a model.
func (s *RedisModelStore) Key(key model.ModelKey) string {
	return s.opts.prefix + "model:" + string(key.Horizon) + ":" + key.PlantID
}

// SaveModel implements ModelStore.
func (s *RedisModelStore) SaveModel(ctx context.Context, m *model.EWMAModel) error {
	defer s.observe("save_model", time.Now())
	rec := redisModel{Values: make(map[string]float64, len(m.Values)), TrainedAt: m.TrainedAt, Blended: m.Blended}
	for b, v := range m.Values {
		rec.Values[strconv.Itoa(b)] = v
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.Key(m.Key), data, 0).Err(); err != nil {
		metrics.RecordStoreError(redisStoreName, "save_model")
		return fmt.Errorf("save model %s: %w", m.Key, err)
	}
	return nil
}

// LoadModel implements ModelStore.
func (s *RedisModelStore) LoadModel(ctx context.Context, key model.ModelKey) (*model.EWMAModel, error) {
	defer s.observe("load_model", time.Now())
	data, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("model %s: %w", key, ErrNotFound)
	}
	if err != nil {
		metrics.RecordStoreError(redisStoreName, "load_model")
		return nil, fmt.Errorf("load model %s: %w", key, err)
	}

	m, err := decodeModel(key, data)
	if err != nil {
		metrics.RecordStoreError(redisStoreName, "load_model")
		return nil, err
	}
	return m, nil
}

// decodeModel parses a stored JSON model. Block keys outside [1,96] are
// rejected the same way the file store rejects them.
func decodeModel(key model.ModelKey, data []byte) (*model.EWMAModel, error) {
	var rec redisModel
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("model %s: %w", key, ErrBadRecord)
	}
	m := &model.EWMAModel{Key: key, Values: make(map[int]float64, len(rec.Values)), TrainedAt: rec.TrainedAt, Blended: rec.Blended}
	for k, v := range rec.Values {
		b, err := strconv.Atoi(k)
		if err != nil || !timeblock.Valid(b) {
			return nil, fmt.Errorf("model %s block %q: %w", key, k, ErrBadRecord)
		}
		m.Values[b] = v
	}
	return m, nil
}

func (s *RedisModelStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(redisStoreName, op, float64(time.Since(start).Microseconds())/1000)
}

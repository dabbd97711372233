package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore shares the memo between server replicas. Keys carry no TTL.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "resale:memo:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*models.PipelineResult, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return decode(raw)
}

func (r *RedisStore) Set(ctx context.Context, key string, result *models.PipelineResult) error {
	raw, err := encode(result)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.prefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func encode(result *models.PipelineResult) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (*models.PipelineResult, error) {
	var result models.PipelineResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, nil
}

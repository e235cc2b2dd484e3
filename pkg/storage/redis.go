package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions configures a RedisAdapter connection.
type RedisOptions struct {
	Addr string
	DB   int
}

// RedisAdapter backs the Adapter contract with a Redis server. Values
// are stored as plain strings; AtomicWrite stages into a side key and
// RENAMEs it into place so readers never see a half-written value.
type RedisAdapter struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisAdapter dials addr and pings it once to surface connection
// problems at construction time rather than on first use.
func NewRedisAdapter(opt RedisOptions, log *zap.Logger) (*RedisAdapter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         opt.Addr,
		DB:           opt.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	r := &RedisAdapter{rdb: rdb, log: log}
	if err := r.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("storage: connecting to redis at %s: %w", opt.Addr, err)
	}
	return r, nil
}

// Ping round-trips a PING and logs the latency, the way a health
// check would before the adapter is handed to callers.
func (r *RedisAdapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		r.log.Warn("redis ping failed", zap.Error(err))
		return err
	}
	r.log.Info("redis ping ok", zap.Duration("ping_rtt", time.Since(start)))
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisAdapter) Close() error {
	return r.rdb.Close()
}

func (r *RedisAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisAdapter) Write(ctx context.Context, key string, data []byte) error {
	if err := r.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisAdapter) Append(ctx context.Context, key string, data []byte) error {
	if err := r.rdb.Append(ctx, key, string(data)).Err(); err != nil {
		return fmt.Errorf("storage: redis append %s: %w", key, err)
	}
	return nil
}

// AtomicWrite stages data under a side key and RENAMEs it over key.
// RENAME is atomic in Redis, so concurrent readers of key see either
// the prior value or the full new one.
func (r *RedisAdapter) AtomicWrite(ctx context.Context, key string, data []byte) error {
	staging := key + ".staging"
	if err := r.rdb.Set(ctx, staging, data, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis staging set %s: %w", key, err)
	}
	if err := r.rdb.Rename(ctx, staging, key).Err(); err != nil {
		return fmt.Errorf("storage: redis rename %s into %s: %w", staging, key, err)
	}
	return nil
}

func (r *RedisAdapter) Del(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("storage: redis del %s: %w", key, err)
	}
	return nil
}

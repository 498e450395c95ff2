package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "stategraph"

// RedisOption configures a RedisStore.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
	ttl    time.Duration
}

// WithKeyPrefix overrides the key prefix used for all Redis keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithThreadTTL sets an expiry applied to each thread's keys on every
// append. Zero (the default) keeps threads forever.
func WithThreadTTL(ttl time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.ttl = ttl
	}
}

// RedisStore is a Redis implementation of Store[S].
//
// Checkpoints for a thread live in two keys: a list holding the append
// order and a hash indexing checkpoints by id. Both are written in a
// single transactional pipeline so readers never observe one without
// the other.
//
// Suited to multi-process deployments where several workers resume the
// same threads, and to caching tiers in front of a durable store.
type RedisStore[S any] struct {
	client     redis.UniversalClient
	cfg        redisConfig
	ownsClient bool
}

// NewRedisStore creates a Redis-backed store from an address.
//
//	st, err := store.NewRedisStore[graph.State]("localhost:6379")
func NewRedisStore[S any](addr string, opts ...RedisOption) (*RedisStore[S], error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	st := NewRedisStoreFromClient[S](client, opts...)
	st.ownsClient = true
	return st, nil
}

// NewRedisStoreFromClient wraps an existing client. The caller keeps
// ownership of the client; Close on the store is a no-op for it. Useful
// in tests with miniredis and in apps that share one client.
func NewRedisStoreFromClient[S any](client redis.UniversalClient, opts ...RedisOption) *RedisStore[S] {
	cfg := redisConfig{prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisStore[S]{client: client, cfg: cfg}
}

func (r *RedisStore[S]) logKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s:log", r.cfg.prefix, threadID)
}

func (r *RedisStore[S]) indexKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s:byid", r.cfg.prefix, threadID)
}

// Put appends a checkpoint (implements Store).
func (r *RedisStore[S]) Put(ctx context.Context, cp Checkpoint[S]) (string, error) {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	raw, err := r.client.HGet(ctx, r.indexKey(cp.ThreadID), cp.ID).Result()
	switch {
	case err == nil:
		var existing Checkpoint[S]
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return "", fmt.Errorf("failed to decode stored checkpoint: %w", err)
		}
		if !payloadEqual(existing, cp) {
			return "", fmt.Errorf("%w: checkpoint %s", ErrCheckpointConflict, cp.ID)
		}
		return cp.ID, nil
	case err != redis.Nil:
		return "", fmt.Errorf("failed to check existing checkpoint: %w", err)
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.logKey(cp.ThreadID), data)
	pipe.HSet(ctx, r.indexKey(cp.ThreadID), cp.ID, data)
	if r.cfg.ttl > 0 {
		pipe.Expire(ctx, r.logKey(cp.ThreadID), r.cfg.ttl)
		pipe.Expire(ctx, r.indexKey(cp.ThreadID), r.cfg.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to append checkpoint: %w", err)
	}

	return cp.ID, nil
}

// GetLatest returns the most recently appended checkpoint for a thread
// (implements Store).
func (r *RedisStore[S]) GetLatest(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	raw, err := r.client.LIndex(ctx, r.logKey(threadID), -1).Result()
	if err == redis.Nil {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}

	var cp Checkpoint[S]
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return zero, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return cp, nil
}

// Get returns a checkpoint by id (implements Store).
func (r *RedisStore[S]) Get(ctx context.Context, threadID, checkpointID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	raw, err := r.client.HGet(ctx, r.indexKey(threadID), checkpointID).Result()
	if err == redis.Nil {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp Checkpoint[S]
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return zero, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return cp, nil
}

// History returns all checkpoints for a thread, most recent first
// (implements Store).
func (r *RedisStore[S]) History(ctx context.Context, threadID string) ([]Checkpoint[S], error) {
	raws, err := r.client.LRange(ctx, r.logKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	out := make([]Checkpoint[S], 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var cp Checkpoint[S]
		if err := json.Unmarshal([]byte(raws[i]), &cp); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, nil
}

// DeleteThread removes every checkpoint for a thread (implements Store).
func (r *RedisStore[S]) DeleteThread(ctx context.Context, threadID string) error {
	if err := r.client.Del(ctx, r.logKey(threadID), r.indexKey(threadID)).Err(); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (r *RedisStore[S]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client when the store created it. For stores built
// with NewRedisStoreFromClient the caller owns the client and Close is
// a no-op.
func (r *RedisStore[S]) Close() error {
	if !r.ownsClient {
		return nil
	}
	return r.client.Close()
}

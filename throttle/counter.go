package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable wraps failures of a shared counter backend.
var ErrBackendUnavailable = errors.New("throttle backend unavailable")

// Counter is the global failed-login counter. Increment must be atomic with
// respect to concurrent callers and return the post-increment value.
type Counter interface {
	Increment(ctx context.Context) (int64, error)
	Load(ctx context.Context) (int64, error)
}

// LocalCounter is an in-process counter. It starts at zero and is never
// reset; a restart clears it.
type LocalCounter struct {
	n atomic.Int64
}

func NewLocalCounter() *LocalCounter {
	return &LocalCounter{}
}

func (c *LocalCounter) Increment(context.Context) (int64, error) {
	return c.n.Add(1), nil
}

func (c *LocalCounter) Load(context.Context) (int64, error) {
	return c.n.Load(), nil
}

// RedisCounter shares one counter across replicas through INCR on a single
// key. The key has no TTL.
type RedisCounter struct {
	redis redis.UniversalClient
	key   string
}

func NewRedisCounter(client redis.UniversalClient, key string) *RedisCounter {
	if key == "" {
		key = "tg:throttle:failed"
	}
	return &RedisCounter{redis: client, key: key}
}

func (c *RedisCounter) Increment(ctx context.Context) (int64, error) {
	n, err := c.redis.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n, nil
}

func (c *RedisCounter) Load(ctx context.Context) (int64, error) {
	n, err := c.redis.Get(ctx, c.key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

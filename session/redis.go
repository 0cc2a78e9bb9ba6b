package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const minKeyTTL = time.Millisecond

// RedisRegistry stores each session under its own key with a TTL matching
// the session expiration, so several server processes share one registry.
// Expiration is still checked against the decoded ExpiresAt on every read.
type RedisRegistry struct {
	redis  redis.UniversalClient
	prefix string
	opts   Options
}

func NewRedisRegistry(client redis.UniversalClient, prefix string, opts Options) *RedisRegistry {
	if prefix == "" {
		prefix = "tg:sess"
	}
	return &RedisRegistry{
		redis:  client,
		prefix: prefix,
		opts:   opts.withDefaults(),
	}
}

func (r *RedisRegistry) key(id string) string {
	return r.prefix + ":" + id
}

// Create writes the session with SET NX so an identifier collision is
// detected and retried with a fresh identifier.
func (r *RedisRegistry) Create(ctx context.Context, in NewSession) (*Session, error) {
	if err := validateNew(in); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := r.opts.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		sess := r.opts.newSession(id, in)

		data, err := Encode(sess)
		if err != nil {
			return nil, err
		}

		ok, err := r.redis.SetNX(ctx, r.key(id), data, keyTTL(sess, sess.CreatedAt)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if ok {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("generate session id: %d collisions", maxCreateAttempts)
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Session, error) {
	sess, _, err := r.load(ctx, id)
	return sess, err
}

// Touch re-writes the blob with the new expiration using SET XX, so a
// session revoked between the read and the write stays revoked.
func (r *RedisRegistry) Touch(ctx context.Context, id string) (*Session, error) {
	sess, now, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.ExpiresAt = r.opts.expiry(sess.CreatedAt, now)
	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	ok, err := r.redis.SetXX(ctx, r.key(id), data, keyTTL(sess, now)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (r *RedisRegistry) Revoke(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Ping reports the round-trip latency to Redis.
func (r *RedisRegistry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return time.Since(start), nil
}

func (r *RedisRegistry) load(ctx context.Context, id string) (*Session, time.Time, error) {
	key := r.key(id)

	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// An undecodable blob cannot authenticate anyone.
		_ = r.redis.Del(ctx, key).Err()
		return nil, time.Time{}, ErrNotFound
	}
	sess.ID = id

	now := r.opts.Now()
	if sess.Expired(now) {
		if err := r.redis.Del(ctx, key).Err(); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil, time.Time{}, ErrNotFound
	}
	return sess, now, nil
}

func keyTTL(sess *Session, now time.Time) time.Duration {
	ttl := sess.ExpiresAt.Sub(now)
	if ttl < minKeyTTL {
		return minKeyTTL
	}
	return ttl
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/pkg/resilience"
)

// RedisConfig configures the distributed locker
type RedisConfig struct {
	Address string
	// TTL bounds how long a crashed holder can block a group
	TTL time.Duration
	// RetryInterval is the linear backoff between obtain attempts
	RetryInterval time.Duration
	// RetryCount bounds obtain attempts per key; the context deadline also applies
	RetryCount int
}

// DefaultRedisConfig returns sensible defaults
func DefaultRedisConfig(address string) *RedisConfig {
	return &RedisConfig{
		Address:       address,
		TTL:           30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
		RetryCount:    40,
	}
}

// NewRedisClient connects to Redis, retrying while the server comes up
func NewRedisClient(ctx context.Context, address string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		PoolSize: 100,
	})
	retry := &resilience.RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      8 * time.Second,
		BackoffFactor: 2,
	}
	err := resilience.Retry(ctx, retry, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", address, err)
	}
	return rdb, nil
}

// RedisLocker holds group locks in Redis so several service instances serialize on the same stock
type RedisLocker struct {
	rdb    redis.UniversalClient
	client *redislock.Client
	config *RedisConfig
}

// NewRedisLocker wraps a Redis client
func NewRedisLocker(rdb redis.UniversalClient, config *RedisConfig) *RedisLocker {
	return &RedisLocker{rdb: rdb, client: redislock.New(rdb), config: config}
}

// Ping checks that Redis answers
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Acquire obtains every key in sorted order. The returned func releases them.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		// release must work even after the request context is cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Release(rctx)
		}
	}

	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.config.RetryInterval), l.config.RetryCount),
	}
	for _, key := range keys {
		lk, err := l.client.Obtain(ctx, key, l.config.TTL, opts)
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) || ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", domain.ErrLockNotObtained, key)
			}
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		held = append(held, lk)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

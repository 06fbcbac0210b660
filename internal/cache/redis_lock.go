// Package cache holds the Redis-backed coordination used across instances.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/config"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token,
// so an expired lock taken over by another instance is left alone.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLock is a best-effort leader lock built on SET NX with a TTL
type RedisLock struct {
	client   redis.Cmdable
	token    string
	newToken func() string
}

// NewRedisClient creates a client for cfg
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

// NewRedisLock creates a lock on the given client
func NewRedisLock(client redis.Cmdable) *RedisLock {
	return &RedisLock{
		client:   client,
		newToken: func() string { return uuid.NewString() },
	}
}

// Acquire tries to take key for ttl. False means another holder has it.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release gives key back if we still hold it
func (l *RedisLock) Release(ctx context.Context, key string) error {
	if l.token == "" {
		return nil
	}
	err := l.client.Eval(ctx, releaseScript, []string{key}, l.token).Err()
	l.token = ""
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

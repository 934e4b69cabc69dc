package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-queue-backend/internal/lock"
)

const (
	minRetryDelay = 10 * time.Millisecond
	maxRetryDelay = 200 * time.Millisecond
)

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a locker backed by one Redis key per lock key, so
// every api-server replica shares the same critical sections.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) lock.Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := "lock:" + key
	token := uuid.NewString()

	if err := l.acquire(ctx, redisKey, token); err != nil {
		return err
	}

	defer func() {
		// release even if the caller's context is already cancelled
		_ = l.release(context.WithoutCancel(ctx), redisKey, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string) error {
	acquireCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	delay := minRetryDelay
	for {
		ok, err := l.client.SetNX(acquireCtx, key, token, l.ttl).Result()
		if err != nil {
			if acquireCtx.Err() != nil {
				return fmt.Errorf("%w: %s: %v", lock.ErrNotAcquired, key, acquireCtx.Err())
			}
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-acquireCtx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %v", lock.ErrNotAcquired, key, acquireCtx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

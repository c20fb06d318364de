package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock that expired or was taken over
var ErrLockNotHeld = errors.New("lock no longer held")

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Redis is a distributed entity lock using SET NX PX with a token-checked release
type Redis struct {
	client       backend.UniversalClient
	prefix       string
	pollInterval time.Duration
}

// RedisOption configures the Redis locker
type RedisOption func(*Redis)

// WithPollInterval sets how often a waiter retries a held lock
func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.pollInterval = d
	}
}

// NewRedis creates a Redis locker. Keys are stored under prefix + "lock:".
func NewRedis(client backend.UniversalClient, prefix string, opts ...RedisOption) *Redis {
	r := &Redis{
		client:       client,
		prefix:       prefix,
		pollInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock acquires the lock, polling until it is free or ctx is done
func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (port.UnlockFunc, error) {
	lockKey := r.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error acquiring lock %s: %w", lockKey, err)
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := r.client.Eval(ctx, unlockScript, []string{lockKey}, token).Int64()
				if err != nil {
					return fmt.Errorf("redis error releasing lock %s: %w", lockKey, err)
				}
				if n == 0 {
					return fmt.Errorf("%w: %s", ErrLockNotHeld, lockKey)
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

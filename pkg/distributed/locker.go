package distributed

import (
	"context"
	"time"

	"streamfy/pkg/retry"

	"go.uber.org/zap"
)

// RedisLocker serializes a key across processes. The in-process mutex is
// taken first so local contenders queue without polling redis.
type RedisLocker struct {
	local   *KeyedMutex
	manager *LockManager
	ttl     time.Duration
	timeout time.Duration
	retry   retry.Config
	logger  *zap.SugaredLogger
}

// NewRedisLocker creates a Locker backed by redis locks.
func NewRedisLocker(manager *LockManager, ttl, timeout time.Duration, logger *zap.SugaredLogger) *RedisLocker {
	return &RedisLocker{
		local:   NewKeyedMutex(),
		manager: manager,
		ttl:     ttl,
		timeout: timeout,
		retry:   acquireRetry(),
		logger:  logger,
	}
}

// acquireRetry retries redis errors only. Contention already waits up to
// the lock timeout inside Acquire.
func acquireRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.NonRetryable = []error{ErrLockTimeout, context.Canceled, context.DeadlineExceeded}
	return cfg
}

// Lock acquires key and returns its release func.
func (rl *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := rl.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	lease := rl.manager.NewLock(key, rl.ttl)
	err = retry.Retry(ctx, rl.retry, func(ctx context.Context) error {
		return lease.Acquire(ctx, rl.timeout)
	})
	if err != nil {
		unlockLocal()
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
		defer cancel()
		if err := lease.Release(ctx); err != nil {
			rl.logger.Warnw("Failed to release distributed lock", "key", key, "error", err)
		}
		unlockLocal()
	}, nil
}

package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock acquisition timeout")

// compare-and-delete so a holder never releases someone else's lease
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// compare-and-extend
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock is a lease held with SET NX PX and renewed at half its TTL
// until released.
type RedisLock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
	poll   time.Duration

	stopRenew chan struct{}
	renewDone chan struct{}
}

func newRedisLock(client redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
		poll:   25 * time.Millisecond,
	}
}

// Acquire blocks until the lease is held, ctx is done or timeout elapses.
func (l *RedisLock) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire %s: %w", l.key, err)
		}
		if ok {
			l.stopRenew = make(chan struct{})
			l.renewDone = make(chan struct{})
			go l.renew()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, l.key)
		}

		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Release stops renewal and deletes the key if it is still ours.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.stopRenew != nil {
		close(l.stopRenew)
		<-l.renewDone
		l.stopRenew = nil
	}
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("release %s: lease lost", l.key)
	}
	return nil
}

func (l *RedisLock) renew() {
	defer close(l.renewDone)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || n == 0 {
				return
			}
		case <-l.stopRenew:
			return
		}
	}
}

// LockManager hands out leases under a common key prefix.
type LockManager struct {
	client redis.Cmdable
	prefix string
}

// NewLockManager creates locks under prefix.
func NewLockManager(client redis.Cmdable, prefix string) *LockManager {
	return &LockManager{client: client, prefix: prefix}
}

// NewLock returns an unacquired lock on key.
func (lm *LockManager) NewLock(key string, ttl time.Duration) *RedisLock {
	return newRedisLock(lm.client, lm.prefix+key, ttl)
}

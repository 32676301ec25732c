// Package lock provides the Redis-backed mutual exclusion that keeps the
// daily scan and the recovery pass from running on more than one instance
// at a time.
package lock

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/zlog"
)

const (
	acquireTries     = 3
	retryDelayBase   = 200 * time.Millisecond
	retryDelayJitter = 200 * time.Millisecond
)

// Locker hands out named TTL-bound locks over a Redis deployment.
type Locker struct {
	rs *redsync.Redsync
}

// NewLocker creates a Locker backed by the given Redis client.
func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rs: redsync.New(goredis.NewPool(rdb))}
}

// WithLock runs fn while holding the named lock.
//
// Acquisition is attempted a small bounded number of times with jittered
// delays. If the lock cannot be taken, WithLock returns (false, nil)
// without running fn: another instance is running this routine right now
// and the caller should skip the cycle, not fail it.
//
// While fn runs, the lock is extended at half-TTL intervals so a routine
// that overruns its TTL does not lose exclusivity; if the holder crashes
// the lock still expires on its own. The lock is always released
// afterwards, including when fn returns an error, and fn's error is
// propagated.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	mu := l.rs.NewMutex(key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(acquireTries),
		redsync.WithRetryDelayFunc(func(tries int) time.Duration {
			return retryDelayBase + time.Duration(rand.Int63n(int64(retryDelayJitter)))
		}),
	)

	if err := mu.LockContext(ctx); err != nil {
		zlog.Logger.Warn().Err(err).Str("key", key).Msg("failed to acquire lock")
		return false, nil
	}

	zlog.Logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("lock acquired")

	done := make(chan struct{})
	defer close(done)

	go l.extend(mu, key, ttl, done)

	defer func() {
		// Release on a fresh context so a cancelled ctx cannot orphan
		// the lock until TTL expiry.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := mu.UnlockContext(unlockCtx); err != nil {
			zlog.Logger.Error().Err(err).Str("key", key).Msg("failed to release lock")
			return
		}

		zlog.Logger.Debug().Str("key", key).Msg("lock released")
	}()

	return true, fn(ctx)
}

// extend renews the lock every half TTL until done is closed.
func (l *Locker) extend(mu *redsync.Mutex, key string, ttl time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := mu.ExtendContext(ctx)
			cancel()

			if err != nil || !ok {
				zlog.Logger.Warn().Err(err).Str("key", key).Msg("failed to extend lock")
			}
		}
	}
}

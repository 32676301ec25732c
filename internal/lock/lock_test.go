package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T) *Locker {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewLocker(rdb)
}

func TestWithLock_RunsFn(t *testing.T) {
	locker := setupLocker(t)

	ran := false
	acquired, err := locker.WithLock(context.Background(), "test:lock", 5*time.Second, func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, ran)
}

func TestWithLock_PropagatesFnError(t *testing.T) {
	locker := setupLocker(t)

	wantErr := errors.New("scan failed")
	acquired, err := locker.WithLock(context.Background(), "test:lock", 5*time.Second, func(ctx context.Context) error {
		return wantErr
	})

	assert.True(t, acquired)
	assert.ErrorIs(t, err, wantErr)
}

func TestWithLock_ReleasedAfterError(t *testing.T) {
	locker := setupLocker(t)
	ctx := context.Background()

	_, err := locker.WithLock(ctx, "test:lock", 5*time.Second, func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)

	// The lock must be free again immediately, not only after TTL.
	acquired, err := locker.WithLock(ctx, "test:lock", 5*time.Second, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestWithLock_ContentionSkipsCycle(t *testing.T) {
	locker := setupLocker(t)
	ctx := context.Background()

	holderIn := make(chan struct{})
	holderOut := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = locker.WithLock(ctx, "test:lock", 30*time.Second, func(ctx context.Context) error {
			close(holderIn)
			<-holderOut
			return nil
		})
	}()

	<-holderIn

	ran := false
	acquired, err := locker.WithLock(ctx, "test:lock", 30*time.Second, func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err, "contention is a skip, not a failure")
	assert.False(t, acquired)
	assert.False(t, ran)

	close(holderOut)
	wg.Wait()
}

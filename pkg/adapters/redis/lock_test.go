package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, redis.WithPrefix("test:"))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "task-1", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)
	assert.True(t, mr.Exists("test:lock:task-1"), "lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:task-1"), "lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	_, client := setup(t)
	locker1 := redis.NewLocker(client)
	locker2 := redis.NewLocker(client)
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(short, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock2, err := locker2.Lock(ctx, "shared", 5*time.Second)
		if assert.NoError(t, err) {
			close(acquired)
			assert.NoError(t, unlock2(ctx))
		}
	}()

	require.NoError(t, unlock1(ctx))
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second locker never acquired the lock")
	}
	wg.Wait()
}

func TestRedisLocker_ExpiredLockIsNotReleasedTwice(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "task-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	other, err := locker.Lock(ctx, "task-1", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, unlock(ctx), redis.ErrLockNotHeld)
	assert.True(t, mr.Exists("conductor:lock:task-1"), "stale unlock must not drop the new holder's lock")
	assert.NoError(t, other(ctx))
}

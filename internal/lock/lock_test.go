package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "test:"), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "reconcile:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("test:reconcile:1"))

	_, ok, err = locker.TryLock(ctx, "reconcile:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "reconcile:1", "someone-else"))
	assert.True(t, mr.Exists("test:reconcile:1"))

	require.NoError(t, locker.Release(ctx, "reconcile:1", token))
	assert.False(t, mr.Exists("test:reconcile:1"))

	_, ok, err = locker.TryLock(ctx, "reconcile:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerExpires(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	locker.nowFn = func() time.Time { return now }
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = locker.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok, "expired lock is reclaimed")

	require.NoError(t, locker.Release(ctx, "k", token))
	_, ok, _ = locker.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok, "stale token does not release the new holder")

	_, _, err = locker.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)
	_, _, err = locker.TryLock(ctx, "x", 0)
	assert.Error(t, err)
}

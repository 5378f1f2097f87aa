package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewRedisLocker(client, time.Minute)
}

func TestRedisLockerExclusive(t *testing.T) {
	_, locker := setupTestRedis(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "prod")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "prod")
	assert.ErrorIs(t, err, ErrHeld)

	// Other orgs are independent
	other, err := locker.Acquire(ctx, "sandbox")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))

	again, err := locker.Acquire(ctx, "prod")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLockerExpires(t *testing.T) {
	mr, locker := setupTestRedis(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("sfsync:lock:prod"))

	mr.FastForward(2 * time.Minute)

	lease, err := locker.Acquire(ctx, "prod")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestRedisLeaseReleaseKeepsForeignLock(t *testing.T) {
	mr, locker := setupTestRedis(t)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "prod")
	require.NoError(t, err)

	// The stale lease expired and another run took the lock
	mr.FastForward(2 * time.Minute)
	current, err := locker.Acquire(ctx, "prod")
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("sfsync:lock:prod"), "stale release must not drop the new holder's lock")

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists("sfsync:lock:prod"))
}

func TestNewRedisLockerFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	locker, err := NewRedisLockerFromURL(context.Background(), "redis://"+mr.Addr()+"/0", time.Minute)
	require.NoError(t, err)
	defer locker.Close()

	_, err = NewRedisLockerFromURL(context.Background(), "://bad", time.Minute)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	lease, err := Noop{}.Acquire(context.Background(), "prod")
	require.NoError(t, err)
	assert.NoError(t, lease.Release(context.Background()))
}

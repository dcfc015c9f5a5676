package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/bank-backoffice/internal/lock"
	"github.com/josh-kwaku/bank-backoffice/internal/logging"
	"github.com/josh-kwaku/bank-backoffice/internal/testutil"
)

func setupClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := testutil.SetupTestRedis(t)

	client, err := lock.NewRedisClient(context.Background(), "redis://"+addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLease_ExclusiveUntilReleased(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	a := lock.NewRedisLease(client, "scheduler", time.Minute, logging.Discard())
	b := lock.NewRedisLease(client, "scheduler", time.Minute, logging.Discard())

	release, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()

	releaseB, ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseB()
}

func TestRedisLease_RenewedWhileHeld(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	a := lock.NewRedisLease(client, "scheduler", 150*time.Millisecond, logging.Discard())
	b := lock.NewRedisLease(client, "scheduler", time.Minute, logging.Discard())

	release, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Held for several ttls: the key must still be ours.
	time.Sleep(600 * time.Millisecond)
	assert.EqualValues(t, 1, client.Exists(ctx, "scheduler").Val())
	_, ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release()
	assert.EqualValues(t, 0, client.Exists(ctx, "scheduler").Val())
}

func TestRedisLease_LostLeaseIsNotTouchedByOldHolder(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	a := lock.NewRedisLease(client, "scheduler", 150*time.Millisecond, logging.Discard())
	b := lock.NewRedisLease(client, "scheduler", time.Minute, logging.Discard())

	releaseA, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate the key vanishing under a, as after a Redis failover.
	require.NoError(t, client.Del(ctx, "scheduler").Err())

	releaseB, ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	defer releaseB()

	// Give a's renewal a few ticks to run against b's key.
	time.Sleep(200 * time.Millisecond)
	assert.Greater(t, client.PTTL(ctx, "scheduler").Val(), 30*time.Second, "b's expiry must not be shortened")

	releaseA()
	assert.EqualValues(t, 1, client.Exists(ctx, "scheduler").Val(), "b still holds the lease")
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := lock.NewRedisClient(context.Background(), "not a url")
	require.Error(t, err)
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-docservices/internal/logger"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())

	return NewRedis(client, logger.NewLogger()), mr
}

func TestLockOrder_AcquireAndRelease(t *testing.T) {
	r, _ := setupTestRedis(t)

	ok, err := r.LockOrder("order-1", "token-a")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second acquisition while held fails.
	ok, err = r.LockOrder("order-1", "token-b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.UnlockOrder("order-1", "token-a"))

	ok, err = r.LockOrder("order-1", "token-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockOrder_IndependentOrders(t *testing.T) {
	r, _ := setupTestRedis(t)

	ok, err := r.LockOrder("order-1", "token-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.LockOrder("order-2", "token-b")
	require.NoError(t, err)
	assert.True(t, ok, "locks on different orders must not interfere")
}

func TestUnlockOrder_ForeignTokenIsNoop(t *testing.T) {
	r, _ := setupTestRedis(t)

	ok, err := r.LockOrder("order-1", "token-a")
	require.NoError(t, err)
	require.True(t, ok)

	// A holder that lost its lock must not release someone else's.
	require.NoError(t, r.UnlockOrder("order-1", "token-b"))

	ok, err = r.LockOrder("order-1", "token-c")
	require.NoError(t, err)
	assert.False(t, ok, "lock should still be held by token-a")
}

func TestUnlockOrder_AlreadyReleased(t *testing.T) {
	r, _ := setupTestRedis(t)

	assert.NoError(t, r.UnlockOrder("order-1", "token-a"))
}

func TestLockOrder_ExpiresAfterTTL(t *testing.T) {
	r, mr := setupTestRedis(t)

	ok, err := r.LockOrder("order-1", "token-a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = r.LockOrder("order-1", "token-b")
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be acquirable again")
}

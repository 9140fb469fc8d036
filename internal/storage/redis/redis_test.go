package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreForTest(t *testing.T) (*miniredis.Miniredis, *TokenStore) {
	t.Helper()

	m := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })

	return m, NewWithClient(client)
}

func TestTakeConsumesExactlyOnce(t *testing.T) {
	_, store := newStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "verify-email:tok", "user-1", time.Hour))

	userID, found, err := store.Take(ctx, "verify-email:tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "user-1", userID)

	// the key is gone after the first take
	_, found, err = store.Take(ctx, "verify-email:tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTakeMissingKey(t *testing.T) {
	_, store := newStoreForTest(t)

	_, found, err := store.Take(context.Background(), "forgot-password:nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpiredKeyIsUnusable(t *testing.T) {
	m, store := newStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "forgot-password:tok", "user-2", time.Minute))

	m.FastForward(time.Minute + time.Second)

	_, found, err := store.Take(ctx, "forgot-password:tok")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, m.Exists("forgot-password:tok"))
}

func TestGetDoesNotConsume(t *testing.T) {
	_, store := newStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "verify-email:tok", "user-3", time.Hour))

	userID, found, err := store.Get(ctx, "verify-email:tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "user-3", userID)

	userID, found, err = store.Take(ctx, "verify-email:tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "user-3", userID)
}

func TestDelete(t *testing.T) {
	_, store := newStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "verify-email:tok", "user-4", time.Hour))
	require.NoError(t, store.Delete(ctx, "verify-email:tok"))

	_, found, err := store.Get(ctx, "verify-email:tok")
	require.NoError(t, err)
	assert.False(t, found)
}

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/model"
	"growth-automation/infrastructure/cache"
)

func newRedisStore(t *testing.T) (*cache.RedisStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisStateStore(client), mr
}

func TestRedisStateStore_SingleUse(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	st := model.StateToken{Nonce: "n1", TenantID: "t1", Platform: model.PlatformLinkedIn, IssuedAt: time.Now().UTC().Truncate(time.Second)}

	require.NoError(t, store.Put(ctx, st, 10*time.Minute))

	got, err := store.Consume(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, st.TenantID, got.TenantID)
	assert.Equal(t, st.Platform, got.Platform)
	assert.True(t, st.IssuedAt.Equal(got.IssuedAt))

	_, err = store.Consume(ctx, "n1")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestRedisStateStore_Expired(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, model.StateToken{Nonce: "n2", TenantID: "t1"}, 10*time.Minute))

	mr.FastForward(11 * time.Minute)

	_, err := store.Consume(ctx, "n2")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestRedisStateStore_DuplicateNonce(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, model.StateToken{Nonce: "dup"}, time.Minute))
	assert.ErrorIs(t, store.Put(ctx, model.StateToken{Nonce: "dup"}, time.Minute), model.ErrConflict)
}

func TestMemoryStateStore(t *testing.T) {
	store := cache.NewMemoryStateStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, model.StateToken{Nonce: "a", TenantID: "t"}, time.Minute))
	got, err := store.Consume(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "t", got.TenantID)

	_, err = store.Consume(ctx, "a")
	assert.ErrorIs(t, err, model.ErrInvalidState)

	require.NoError(t, store.Put(ctx, model.StateToken{Nonce: "b"}, -time.Second))
	_, err = store.Consume(ctx, "b")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client)
}

func TestSetNXClaimIsExclusive(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	first, err := c.SetNX(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	second, err := c.SetNX(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.False(t, second)
}

func TestExpireConvertsClaimToStamp(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Expire(ctx, "k", time.Hour))

	_, exists, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDeleteMakesKeyRetryable(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, err := c.SetNX(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "k"))

	again, err := c.SetNX(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, again)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, exists, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestSetEXRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SetEX(ctx, "snap", `{"label":"verified"}`, time.Hour))

	val, exists, err := c.Get(ctx, "snap")
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `{"label":"verified"}`, val)
}

func TestDedupKeyFormat(t *testing.T) {
	require.Equal(t, "analyzed:youtube:abc@doom_v1@even_16", DedupKey("youtube", "abc", "doom_v1", 16))
}

func TestSnapshotKeyFormat(t *testing.T) {
	require.Equal(t, "video:youtube:abc", SnapshotKey("youtube", "abc"))
}

package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.True(t, mr.Exists("cargodesk:k"))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	require.NoError(t, c.Delete(ctx, "k", "missing"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Delete(ctx))
	require.NoError(t, c.Ping(ctx))
}

func TestRedisCache_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewWithPrefix(mr.Addr(), "t:")

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_GetError(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	mr.FastForward(2 * time.Minute)
	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())
	defer rl.Close()
	ctx := context.Background()

	_, n, err := rl.Allow(ctx, "notify:user:7", 5, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.True(t, mr.Exists("cargodesk:ratelimit:notify:user:7"))

	mr.FastForward(40 * time.Second)
	_, n, _ = rl.Allow(ctx, "notify:user:7", 5, time.Minute)
	require.Equal(t, int64(2), n)

	// the second hit did not push the window out
	mr.FastForward(30 * time.Second)
	_, n, _ = rl.Allow(ctx, "notify:user:7", 5, time.Minute)
	require.Equal(t, int64(1), n)

	// a counter left without expiry gets one
	require.NoError(t, mr.Set("cargodesk:ratelimit:stuck", "9"))
	ok, n, err := rl.Allow(ctx, "stuck", 5, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(10), n)
	require.Equal(t, time.Minute, mr.TTL("cargodesk:ratelimit:stuck"))
}

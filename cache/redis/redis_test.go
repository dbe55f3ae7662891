package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, "test:"), mr
}

func TestCache_SetGetDelete(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "t1:u1:/courses", []byte(`{"items":[]}`), 30*time.Second))
	assert.True(t, mr.Exists("test:t1:u1:/courses"))

	got, ok, err := c.Get(ctx, "t1:u1:/courses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"items":[]}`), got)

	require.NoError(t, c.DeletePrefix(ctx, "t1:u1:"))
	_, ok, err = c.Get(ctx, "t1:u1:/courses")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_DeletePrefixKeepsOtherUsers(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 2*scanCount+5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("t1:u1:/courses/%d", i), []byte("v"), time.Minute))
	}
	require.NoError(t, c.Set(ctx, "t1:u10:/courses", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "t2:u1:/courses", []byte("v"), time.Minute))
	require.NoError(t, mr.Set("other:t1:u1:/courses", "v"))

	require.NoError(t, c.DeletePrefix(ctx, "t1:u1:"))
	assert.Equal(t, []string{"other:t1:u1:/courses", "test:t1:u10:/courses", "test:t2:u1:/courses"}, mr.Keys())
}

func TestCache_TTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 30*time.Second))
	assert.Equal(t, 30*time.Second, mr.TTL("test:k"))

	mr.FastForward(31 * time.Second)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_BackendErrorSurfaces(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, ok, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewFromAddr(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewFromAddr(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Second))
	assert.True(t, mr.Exists(DefaultPrefix+"k"))
}

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client), mr
}

func TestRedisCache_GetMissingKey(t *testing.T) {
	c, _ := setupTestCache(t)

	val, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestRedisCache_SetGetDel(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, c.Del(ctx, "k"))
	val, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestRedisCache_TakeSlots(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()
	slots := []Slot{
		{Key: "a", Limit: 2, TTL: time.Minute},
		{Key: "b", Limit: 5, TTL: time.Hour},
	}

	counts, taken, err := c.TakeSlots(ctx, slots)
	require.NoError(t, err)
	assert.True(t, taken)
	assert.Equal(t, []int64{0, 0}, counts)

	counts, taken, err = c.TakeSlots(ctx, slots)
	require.NoError(t, err)
	assert.True(t, taken)
	assert.Equal(t, []int64{1, 1}, counts)
	assert.Equal(t, time.Hour, mr.TTL("b"))

	// "a" is full, so nothing is incremented.
	counts, taken, err = c.TakeSlots(ctx, slots)
	require.NoError(t, err)
	assert.False(t, taken)
	assert.Equal(t, []int64{2, 2}, counts)
	b, err := mr.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", b)

	mr.FastForward(2 * time.Minute)
	_, taken, err = c.TakeSlots(ctx, slots)
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestRedisCache_TakeSlotsIsAtomic(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()
	slots := []Slot{{Key: "burst", Limit: 5, TTL: time.Minute}}

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, taken, err := c.TakeSlots(ctx, slots); err == nil && taken {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), allowed.Load())
	v, err := mr.Get("burst")
	require.NoError(t, err)
	assert.Equal(t, "5", v)
}

func TestRedisCache_TakeSlotsRejectsNonInteger(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "x", "abc", 0))
	_, _, err := c.TakeSlots(ctx, []Slot{{Key: "x", Limit: 1, TTL: time.Minute}})
	assert.Error(t, err)
}

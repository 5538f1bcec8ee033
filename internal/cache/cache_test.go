package cache_test

import (
	"errors"
	"testing"
	"time"

	"taskboard/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) *cache.RedisCache {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewRedisCacheFromClient(client)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCacheSetGet(t *testing.T) {
	c := setupRedisCache(t)

	type payload struct {
		Title string `json:"title"`
		Rank  int    `json:"rank"`
	}

	require.NoError(t, c.Set("tasks:user:u1:board", payload{Title: "Buy milk", Rank: 2}, time.Minute))

	var got payload
	require.NoError(t, c.Get("tasks:user:u1:board", &got))
	assert.Equal(t, "Buy milk", got.Title)
	assert.Equal(t, 2, got.Rank)
}

func TestRedisCacheMiss(t *testing.T) {
	c := setupRedisCache(t)

	var got string
	err := c.Get("missing", &got)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestRedisCacheDeletePattern(t *testing.T) {
	c := setupRedisCache(t)

	require.NoError(t, c.Set("tasks:user:u1:board", "a", time.Minute))
	require.NoError(t, c.Set("tasks:user:u1:list::::", "b", time.Minute))
	require.NoError(t, c.Set("tasks:user:u2:board", "c", time.Minute))

	require.NoError(t, c.DeletePattern("tasks:user:u1:*"))

	var got string
	assert.ErrorIs(t, c.Get("tasks:user:u1:board", &got), cache.ErrCacheMiss)
	assert.ErrorIs(t, c.Get("tasks:user:u1:list::::", &got), cache.ErrCacheMiss)
	assert.NoError(t, c.Get("tasks:user:u2:board", &got), "other users' keys survive")
}

func TestMemoryCacheExpiry(t *testing.T) {
	m := cache.NewMemoryCache()

	m.Set("k", []byte(`"v"`), 10*time.Millisecond)
	_, found := m.Get("k")
	assert.True(t, found)

	time.Sleep(20 * time.Millisecond)
	_, found = m.Get("k")
	assert.False(t, found)
}

func TestMemoryCacheDeletePattern(t *testing.T) {
	m := cache.NewMemoryCache()

	m.Set("tasks:user:u1:board", []byte("{}"), time.Minute)
	m.Set("tasks:user:u1:list", []byte("[]"), time.Minute)
	m.Set("tasks:user:u2:board", []byte("{}"), time.Minute)

	m.DeletePattern("tasks:user:u1:*")

	_, found := m.Get("tasks:user:u1:board")
	assert.False(t, found)
	_, found = m.Get("tasks:user:u2:board")
	assert.True(t, found)
	assert.Equal(t, 1, m.Len())
}

func TestMultiLevelCacheL1Hit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ml := cache.NewMultiLevelCache(cache.NewRedisCacheFromClient(client))
	t.Cleanup(func() { ml.Close() })

	require.NoError(t, ml.Set("key", "value", time.Minute))

	// Kill Redis; L1 still answers.
	mr.Close()

	var got string
	require.NoError(t, ml.Get("key", &got))
	assert.Equal(t, "value", got)
}

func TestMultiLevelCacheWithoutRedis(t *testing.T) {
	ml := cache.NewMultiLevelCache(nil)

	require.NoError(t, ml.Set("key", 42, time.Minute))

	var got int
	require.NoError(t, ml.Get("key", &got))
	assert.Equal(t, 42, got)

	require.NoError(t, ml.Delete("key"))
	assert.ErrorIs(t, ml.Get("key", &got), cache.ErrCacheMiss)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := cache.NewCircuitBreaker(&cache.CircuitBreakerConfig{
		MaxFailures:      3,
		Timeout:          time.Hour,
		HalfOpenMaxCalls: 1,
	})

	boom := errors.New("redis down")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, cache.CircuitBreakerOpen, cb.State())
	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, cache.ErrCircuitBreakerOpen)
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := cache.NewCircuitBreaker(&cache.CircuitBreakerConfig{
		MaxFailures:      1,
		Timeout:          10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})

	require.Error(t, cb.Execute(func() error { return errors.New("down") }))
	assert.Equal(t, cache.CircuitBreakerOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, cache.CircuitBreakerClosed, cb.State())
}

func TestCircuitBreakerTreatsMissAsSuccess(t *testing.T) {
	cb := cache.NewCircuitBreaker(&cache.CircuitBreakerConfig{
		MaxFailures:      1,
		Timeout:          time.Hour,
		HalfOpenMaxCalls: 1,
	})

	for i := 0; i < 5; i++ {
		err := cb.Execute(func() error { return cache.ErrCacheMiss })
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	}
	assert.Equal(t, cache.CircuitBreakerClosed, cb.State())
}

package cache

import (
	"encoding/json"
	"time"
)

type Cache interface {
	Set(key string, value interface{}, ttl time.Duration) error
	Get(key string, dest interface{}) error
	Delete(key string) error
	DeletePattern(pattern string) error
	Health() error
	Close() error
}

// MultiLevelCache layers an in-process cache over Redis. L1 absorbs hot
// board reads; Redis calls run through a circuit breaker so a Redis outage
// degrades to L1-plus-database instead of slowing every request.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	breaker *CircuitBreaker
}

func NewMultiLevelCache(redisCache *RedisCache) *MultiLevelCache {
	return &MultiLevelCache{
		l1:      NewMemoryCache(),
		l2:      redisCache,
		breaker: NewCircuitBreaker(nil),
	}
}

func (c *MultiLevelCache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.l1.Set(key, data, ttl)

	if c.l2 != nil {
		return c.breaker.Execute(func() error {
			return c.l2.Set(key, value, ttl)
		})
	}
	return nil
}

func (c *MultiLevelCache) Get(key string, dest interface{}) error {
	if data, found := c.l1.Get(key); found {
		return json.Unmarshal(data, dest)
	}

	if c.l2 != nil {
		err := c.breaker.Execute(func() error {
			return c.l2.Get(key, dest)
		})
		if err == nil {
			if data, marshalErr := json.Marshal(dest); marshalErr == nil {
				c.l1.Set(key, data, time.Minute)
			}
		}
		return err
	}

	return ErrCacheMiss
}

func (c *MultiLevelCache) Delete(key string) error {
	c.l1.Delete(key)

	if c.l2 != nil {
		return c.breaker.Execute(func() error {
			return c.l2.Delete(key)
		})
	}
	return nil
}

func (c *MultiLevelCache) DeletePattern(pattern string) error {
	c.l1.DeletePattern(pattern)

	if c.l2 != nil {
		return c.breaker.Execute(func() error {
			return c.l2.DeletePattern(pattern)
		})
	}
	return nil
}

func (c *MultiLevelCache) Health() error {
	if c.l2 != nil {
		return c.l2.Health()
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

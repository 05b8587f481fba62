package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

type counter struct {
	count     int64
	expiresAt time.Time
}

// MemoryCache is a mutex-guarded in-memory Cache, used when REDIS_URL is not
// set (development mode) and by unit tests. Expired entries are evicted
// lazily on read.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]entry
	counters map[string]counter
	now      func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  make(map[string]entry),
		counters: make(map[string]counter),
		now:      time.Now,
	}
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cnt, ok := c.counters[key]
	if !ok || now.After(cnt.expiresAt) {
		cnt = counter{}
	}
	cnt.count++
	cnt.expiresAt = now.Add(expiry)
	c.counters[key] = cnt
	return cnt.count, nil
}

func (c *MemoryCache) Close() error { return nil }

// Compile-time check that MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)

package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache for development and tests. Expired
// entries are dropped lazily on access.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  bool
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

var errCacheClosed = errors.New("cache is closed")

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) lookup(key string) ([]byte, bool) {
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) store(key string, value []byte, ttl time.Duration) {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errCacheClosed
	}
	v, ok := c.lookup(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

// MGet retrieves several values.
func (c *MemoryCache) MGet(_ context.Context, keys ...string) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errCacheClosed
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i], _ = c.lookup(k)
	}
	return out, nil
}

// Set stores a value with a TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errCacheClosed
	}
	c.store(key, value, ttl)
	return nil
}

// SetNX stores a value only if the key is absent or expired.
func (c *MemoryCache) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, errCacheClosed
	}
	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.store(key, value, ttl)
	return true, nil
}

// Incr increments an integer key, creating it at 1. The TTL is kept.
func (c *MemoryCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errCacheClosed
	}

	var n int64
	e, ok := c.entries[key]
	if ok && !e.expired(c.now()) {
		var err error
		if n, err = strconv.ParseInt(string(e.value), 10, 64); err != nil {
			return 0, errors.New("value is not an integer")
		}
	} else {
		e = memoryEntry{}
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	c.entries[key] = e
	return n, nil
}

// Delete removes a value.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errCacheClosed
	}
	delete(c.entries, key)
	return nil
}

// Exists checks if a key exists.
func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, errCacheClosed
	}
	_, ok := c.lookup(key)
	return ok, nil
}

// Ping reports an error once the cache is closed.
func (c *MemoryCache) Ping(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errCacheClosed
	}
	return nil
}

// Close marks the cache closed.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

package cache

import (
	"context"
	"sync"
	"time"
)

// ReplaceFunc decides whether incoming may overwrite the live cached value.
type ReplaceFunc[V any] func(cached, incoming V) bool

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL map with a background janitor. The zero value is not
// usable; construct with New.
type Cache[V any] struct {
	mu         sync.RWMutex
	items      map[string]entry[V]
	defaultTTL time.Duration

	hits   uint64
	misses uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache whose entries live for defaultTTL.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:      make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}
	interval := defaultTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	go c.janitor(interval)
	return c
}

// Get returns a live value and counts the hit or miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.value, true
}

// Set stores value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value for ttl.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// SetIf stores value unless a live entry exists and replace rejects it.
// The check and the write happen under one lock. It returns the value
// left in the cache. A nil replace always overwrites.
func (c *Cache[V]) SetIf(key string, value V, replace ReplaceFunc[V]) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok && replace != nil && time.Now().Before(e.expiresAt) && !replace(e.value, value) {
		return e.value
	}
	c.items[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.defaultTTL)}
	return value
}

// GetOrLoad returns the cached value or calls load and caches its result
// through SetIf, so a slow load cannot clobber a value written meanwhile.
// Load errors are not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error), replace ReplaceFunc[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	return c.SetIf(key, v, replace), nil
}

type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// Stats returns the current size and the hit and miss counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Size: len(c.items), Hits: c.hits, Misses: c.misses}
}

// Stop ends the janitor goroutine.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.items {
				if now.After(e.expiresAt) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Package metacache keeps short-lived lookups, including negative ones,
// keyed by path.
package metacache

import (
	"sync"
	"time"
)

// State is the outcome of a Lookup.
type State int

const (
	// Miss means nothing usable is cached.
	Miss State = iota
	// Hit means a value is cached.
	Hit
	// Missing means the key is cached as not existing.
	Missing
)

type entry[V any] struct {
	value      V
	missing    bool
	expiration time.Time
}

// Cache is a TTL map safe for concurrent use.
type Cache[V any] struct {
	entries map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache[V]) Lookup(key string) (V, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, found := c.entries[key]
	if !found {
		return zero, Miss
	}
	if c.now().After(e.expiration) {
		delete(c.entries, key)
		return zero, Miss
	}
	if e.missing {
		return zero, Missing
	}
	return e.value, Hit
}

func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: v, expiration: c.now().Add(c.ttl)}
}

// SetMissing records that key does not exist.
func (c *Cache[V]) SetMissing(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{missing: true, expiration: c.now().Add(c.ttl)}
}

func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Package cache holds short-lived read snapshots, such as the ledger state
// served by GET /api/state.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Flush drops every entry.
	Flush()
	Size() int
}

// TTLCache is a typed Cache whose entries expire after a fixed TTL.
// Expired entries are purged by go-cache's janitor.
type TTLCache[T any] struct {
	items *gocache.Cache
	ttl   time.Duration

	mu  sync.Mutex
	gen uint64
}

var _ Cache[int] = (*TTLCache[int])(nil)

// NewTTLCache returns a cache whose entries live for ttl. A zero ttl
// disables caching: Set becomes a no-op.
func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	cleanup := 2 * ttl
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &TTLCache[T]{
		items: gocache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

func (c *TTLCache[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	data, ok := v.(T)
	if !ok {
		return zero, false
	}
	return data, true
}

func (c *TTLCache[T]) Set(key string, data T) {
	if c.ttl <= 0 {
		return
	}
	c.items.Set(key, data, c.ttl)
}

// Generation counts flushes. Read it before computing a value and pass it
// to SetIfCurrent.
func (c *TTLCache[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfCurrent stores data only if no Flush happened since gen was read.
func (c *TTLCache[T]) SetIfCurrent(key string, data T, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.ttl <= 0 {
		return false
	}
	c.items.Set(key, data, c.ttl)
	return true
}

func (c *TTLCache[T]) Delete(key string) {
	c.items.Delete(key)
}

func (c *TTLCache[T]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.items.Flush()
}

// Size counts stored entries, including expired ones not yet purged.
func (c *TTLCache[T]) Size() int {
	return c.items.ItemCount()
}

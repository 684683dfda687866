// Package cache provides a size bounded, expiring cache with deduplicated loads.
package cache

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ErrNoLoader is returned by GetOrLoad when no loader was supplied.
var ErrNoLoader = errors.New("cache: loader is required")

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL is an LRU cache whose entries also expire after a fixed duration.
type TTL[V any] struct {
	items *lru.Cache[string, entry[V]]
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time
}

// New returns a cache holding at most size entries for ttl each.
func New[V any](size int, ttl time.Duration) *TTL[V] {
	if size <= 0 {
		size = 128
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	// lru.New only fails for non-positive sizes
	items, _ := lru.New[string, entry[V]](size)
	return &TTL[V]{items: items, ttl: ttl, now: time.Now}
}

// Get returns the cached value for key when present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	item, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	if !c.now().Before(item.expires) {
		c.items.Remove(key)
		return zero, false
	}
	return item.value, true
}

// Set stores value under key.
func (c *TTL[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.items.Add(key, entry[V]{value: value, expires: c.now().Add(c.ttl)})
}

// Delete evicts key.
func (c *TTL[V]) Delete(key string) {
	if c == nil {
		return
	}
	c.items.Remove(key)
}

// Purge evicts everything.
func (c *TTL[V]) Purge() {
	if c == nil {
		return
	}
	c.items.Purge()
}

// Len reports the number of entries, expired ones included.
func (c *TTL[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.items.Len()
}

// GetOrLoad returns the cached value for key, calling load on a miss. Concurrent
// misses for the same key share a single load. Failed loads are not cached.
func (c *TTL[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	var zero V
	if load == nil {
		return zero, ErrNoLoader
	}
	if c == nil {
		return load(ctx)
	}
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value)
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return result.(V), nil
}

// Package cache provides a small thread-safe in-memory TTL cache.
package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (i item[V]) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// Memory maps string keys to values that expire after a TTL. A zero TTL
// keeps entries until they are deleted.
type Memory[V any] struct {
	mu   sync.RWMutex
	data map[string]item[V]
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// NewMemory creates a cache whose entries live for ttl. When sweep is
// positive a janitor goroutine drops expired entries on that interval until
// Close is called.
func NewMemory[V any](ttl, sweep time.Duration) *Memory[V] {
	c := &Memory[V]{
		data: make(map[string]item[V]),
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	if sweep > 0 {
		go c.janitor(sweep)
	}
	return c
}

// Get returns the value stored under key if it has not expired.
func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || it.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores value under key with the cache TTL.
func (c *Memory[V]) Set(key string, value V) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.data[key] = item[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Delete removes key.
func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included until the
// next sweep.
func (c *Memory[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear removes all entries.
func (c *Memory[V]) Clear() {
	c.mu.Lock()
	c.data = make(map[string]item[V])
	c.mu.Unlock()
}

// Close stops the janitor. It is safe to call more than once.
func (c *Memory[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Memory[V]) sweep() {
	now := time.Now()
	c.mu.Lock()
	for k, it := range c.data {
		if it.expired(now) {
			delete(c.data, k)
		}
	}
	c.mu.Unlock()
}

func (c *Memory[V]) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

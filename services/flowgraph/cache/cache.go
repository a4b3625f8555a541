// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides a generic fixed-capacity LRU store.
//
// The cache is a building block for data-access collaborators (model
// documents, element queries) that want bounded memoization. It is not
// run-scoped: entries survive across runs and are invalidated explicitly
// when the underlying source changes.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCapacity bounds a cache constructed with a non-positive capacity.
const DefaultCapacity = 128

// Cache is a fixed-capacity key/value store with least-recently-accessed
// eviction.
//
// # Eviction
//
// Set on a new key at capacity evicts exactly one entry: the least
// recently accessed. Both Set and Get refresh an entry's recency.
//
// # Thread Safety
//
// Safe for concurrent use. Uses sync.RWMutex for the entry map and
// singleflight.Group to deduplicate concurrent loads.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	lru     *list.List
	flight  singleflight.Group
	options Options

	// Stats
	hits      int64
	misses    int64
	evictions int64
	loads     int64
	errors    int64
}

type entry[V any] struct {
	key             string
	value           V
	storedAtMilli   int64
	lastAccessMilli int64
	lruElement      *list.Element
}

// Options configures a Cache.
type Options struct {
	// Capacity is the maximum number of entries. Default: DefaultCapacity.
	Capacity int

	// TTL bounds entry staleness. Zero disables expiry.
	TTL time.Duration

	// LoadTimeout caps a single GetOrLoad computation. Zero disables
	// the per-load deadline.
	LoadTimeout time.Duration
}

// Option is a functional option for configuring a Cache.
type Option func(*Options)

// WithTTL sets the entry time-to-live.
func WithTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TTL = d
		}
	}
}

// WithLoadTimeout caps a single GetOrLoad computation.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.LoadTimeout = d
		}
	}
}

// New creates a Cache holding at most capacity entries.
func New[V any](capacity int, opts ...Option) *Cache[V] {
	options := Options{Capacity: capacity}
	if options.Capacity <= 0 {
		options.Capacity = DefaultCapacity
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		lru:     list.New(),
		options: options,
	}
}

// LoadFunc computes a value for GetOrLoad misses.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Get retrieves a value and refreshes its recency.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return zero, false
	}

	if c.isExpired(e) {
		c.mu.RUnlock()
		c.remove(key)
		atomic.AddInt64(&c.misses, 1)
		return zero, false
	}

	value := e.value
	atomic.StoreInt64(&e.lastAccessMilli, time.Now().UnixMilli())
	c.mu.RUnlock()

	c.refresh(e)

	atomic.AddInt64(&c.hits, 1)
	return value, true
}

// Set stores a value under key.
//
// Description:
//
//	An existing key is updated in place and refreshed. A new key at
//	capacity first evicts the least-recently-accessed entry, then is
//	inserted as most recent.
func (c *Cache[V]) Set(key string, value V) {
	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.entries[key]; exists {
		e.value = value
		e.storedAtMilli = now
		e.lastAccessMilli = now
		c.lru.MoveToFront(e.lruElement)
		return
	}

	for len(c.entries) >= c.options.Capacity {
		if !c.evictOldestLocked() {
			break
		}
	}

	e := &entry[V]{
		key:             key,
		value:           value,
		storedAtMilli:   now,
		lastAccessMilli: now,
	}
	e.lruElement = c.lru.PushFront(key)
	c.entries[key] = e
}

// GetOrLoad returns the cached value or computes it through load.
//
// Description:
//
//	Concurrent calls for the same key are deduplicated with
//	singleflight: one load runs, all waiters share its result. The
//	cache is double-checked inside the flight since another goroutine
//	may have populated it while this one waited.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	result, err, _ := c.flight.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}

		loadCtx := ctx
		if c.options.LoadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(ctx, c.options.LoadTimeout)
			defer cancel()
		}

		v, err := load(loadCtx)
		if err != nil {
			atomic.AddInt64(&c.errors, 1)
			return nil, err
		}

		c.Set(key, v)
		atomic.AddInt64(&c.loads, 1)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Invalidate removes a single entry.
func (c *Cache[V]) Invalidate(key string) {
	c.remove(key)
}

// Clear removes all entries. Counters are cumulative and survive Clear.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.lru.Init()
}

// Len returns the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Loads     int64 `json:"loads"`
	Errors    int64 `json:"errors"`
	Len       int   `json:"len"`
	Capacity  int   `json:"capacity"`
}

// Stats returns current counter values.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Loads:     atomic.LoadInt64(&c.loads),
		Errors:    atomic.LoadInt64(&c.errors),
		Len:       c.Len(),
		Capacity:  c.options.Capacity,
	}
}

func (c *Cache[V]) isExpired(e *entry[V]) bool {
	if c.options.TTL == 0 {
		return false
	}
	return time.Since(time.UnixMilli(e.storedAtMilli)) > c.options.TTL
}

// refresh moves an entry to the most-recent position.
func (c *Cache[V]) refresh(e *entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.lruElement != nil {
		// MoveToFront no-ops if the element was evicted meanwhile.
		c.lru.MoveToFront(e.lruElement)
	}
}

func (c *Cache[V]) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.lruElement != nil {
		c.lru.Remove(e.lruElement)
	}
	delete(c.entries, key)
}

// evictOldestLocked drops the least-recently-accessed entry. Caller must
// hold the write lock.
func (c *Cache[V]) evictOldestLocked() bool {
	elem := c.lru.Back()
	if elem == nil {
		return false
	}
	key := elem.Value.(string)
	e := c.entries[key]
	if e == nil {
		c.lru.Remove(elem)
		return false
	}
	c.lru.Remove(e.lruElement)
	delete(c.entries, key)
	atomic.AddInt64(&c.evictions, 1)
	return true
}

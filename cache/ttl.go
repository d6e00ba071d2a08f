package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is a cached value with an optional absolute expiry. A zero ExpiresAt
// never expires.
type Entry struct {
	Value     any
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e Entry) Expired(at time.Time) bool {
	return !e.ExpiresAt.IsZero() && at.After(e.ExpiresAt)
}

// FetchOptions controls a single TTLCache.Fetch call.
type FetchOptions struct {
	// TTL is relative to the moment the computed value is stored; zero or
	// negative stores the value without expiry.
	TTL time.Duration
	// Force recomputes even when a live entry exists.
	Force bool
}

// TTLCache is an in-process key/value store with lazy per-entry expiry.
// Expired entries are dropped when they are read; there is no sweeper.
//
// Concurrent Fetch calls for the same key share a single compute.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
	flights singleflight.Group
}

type Option func(*TTLCache)

// WithClock injects the time source used for expiry decisions.
func WithClock(fn func() time.Time) Option {
	return func(c *TTLCache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New builds an empty TTLCache.
func New(opts ...Option) *TTLCache {
	c := &TTLCache{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Fetch returns the live value stored under key, or runs compute, stores its
// result and returns it. A compute error is returned as-is and nothing is
// stored.
func (c *TTLCache) Fetch(key string, opts FetchOptions, compute func() (any, error)) (any, error) {
	if !opts.Force {
		if v, ok := c.Read(key); ok {
			return v, nil
		}
	}

	v, err, _ := c.flights.Do(key, func() (any, error) {
		if !opts.Force {
			if v, ok := c.Read(key); ok {
				return v, nil
			}
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.Write(key, v, opts.TTL)
		return v, nil
	})
	return v, err
}

// Read returns the value for key unless it is missing or expired.
func (c *TTLCache) Read(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.Expired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.Value, true
}

// Write stores value under key. A ttl of zero or less never expires.
func (c *TTLCache) Write(key string, value any, ttl time.Duration) {
	entry := Entry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Delete removes key if present.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Exists reports whether a live entry is stored under key.
func (c *TTLCache) Exists(key string) bool {
	_, ok := c.Read(key)
	return ok
}

package ttlcache

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is the default lifetime of a cache entry.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries is the default maximum number of entries.
	DefaultMaxEntries = 5000
)

// Config holds cache settings loadable from the environment.
type Config struct {
	TTL        time.Duration `env:"AUTHZ_CACHE_TTL" envDefault:"5m"`
	MaxEntries int           `env:"AUTHZ_CACHE_MAX_ENTRIES" envDefault:"5000"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe bounded cache with TTL expiry and
// oldest-written-first eviction.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	order      []string // write order, oldest first
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// WithTTL sets the entry lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMaxEntries sets the maximum number of entries. Non-positive values are ignored.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithConfig applies TTL and size limits from a Config.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.TTL > 0 {
			o.ttl = cfg.TTL
		}
		if cfg.MaxEntries > 0 {
			o.maxEntries = cfg.MaxEntries
		}
	}
}

// WithClock sets the time source used for expiry checks.
// Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a cache with the given options.
func New[V any](opts ...Option) *Cache[V] {
	o := options{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		order:      make([]string, 0, o.maxEntries),
		ttl:        o.ttl,
		maxEntries: o.maxEntries,
		now:        o.now,
	}
}

// Get returns the value stored under key if it exists and has not expired.
// Expired entries across the whole cache are pruned before the lookup; the
// scan is linear but the cache is bounded, so the cost stays small.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneExpiredLocked()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	return e.value, true
}

// Set stores value under key with the configured TTL. Writing an existing
// key re-inserts it at the back of the eviction queue, so eviction always
// removes the least recently written key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.removeOrderLocked(key)
	}

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
	c.order = append(c.order, key)

	for len(c.entries) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Delete removes the entry stored under key, if any.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.removeOrderLocked(key)
	}
}

// DeletePrefix removes every entry whose key starts with prefix and
// returns the number of entries removed.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	kept := c.order[:0]
	for _, key := range c.order {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept

	return removed
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry[V])
	c.order = c.order[:0]
}

// Len returns the current number of entries, including not-yet-pruned
// expired ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PruneExpired removes all expired entries and returns how many were removed.
func (c *Cache[V]) PruneExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneExpiredLocked()
}

// Must be called with lock held.
func (c *Cache[V]) pruneExpiredLocked() int {
	now := c.now()
	removed := 0
	kept := c.order[:0]
	for _, key := range c.order {
		if e, ok := c.entries[key]; ok && now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept

	return removed
}

// Must be called with lock held.
func (c *Cache[V]) removeOrderLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

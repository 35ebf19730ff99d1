// Package ttlcache provides a bounded in-memory cache with per-entry TTL
// expiry, designed for memoizing derived authorization data such as resolved
// role permissions and policy decisions.
//
// Entries are evicted in write order: when the cache exceeds its configured
// maximum size, the least recently written entry is removed first. Writing an
// existing key moves it to the back of the eviction queue. Expired entries
// are pruned lazily on every read.
//
// Cached values are derived, never authoritative. A lost or evicted entry
// only costs a recomputation on the next miss, so the cache favors
// simplicity over hit-rate tuning.
//
// Basic usage:
//
//	cache := ttlcache.New[string](
//	    ttlcache.WithTTL(5*time.Minute),
//	    ttlcache.WithMaxEntries(5000),
//	)
//
//	cache.Set("org1:admin", "value")
//	if v, ok := cache.Get("org1:admin"); ok {
//	    // Use cached value
//	}
//
//	// Drop all entries for one organization
//	cache.DeletePrefix("org1:")
package ttlcache

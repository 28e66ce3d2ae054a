// Package localcache implements the advisory, per-process decision cache
// that sits in front of the shared storage adapter. It is never the source
// of truth: it exists purely to short-circuit known-rejected keys and warm
// repeated accepts without a round trip to the shared store.
package localcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache maps a key to the last observed usage count, bounded by both size
// and a fixed write-TTL. Eviction is LRU-quality, provided by
// hashicorp/golang-lru's expirable variant.
type Cache struct {
	lru      *lru.LRU[string, int64]
	disabled bool
}

// Config controls the cache's capacity and staleness window.
type Config struct {
	// Size caps the number of distinct keys tracked at once.
	Size int

	// TTL is the time from insertion (not last read) after which an entry
	// is considered stale and is treated as absent.
	TTL time.Duration
}

// DefaultConfig returns a 10,000-entry cap and a 100ms TTL.
func DefaultConfig() Config {
	return Config{Size: 10_000, TTL: 100 * time.Millisecond}
}

// New constructs a Cache. A zero-value TTL disables caching effectively by
// making every probe an immediate miss (see Probe).
func New(cfg Config) *Cache {
	size := cfg.Size
	if size <= 0 {
		size = 10_000
	}
	return &Cache{lru: lru.NewLRU[string, int64](size, nil, cfg.TTL), disabled: cfg.TTL <= 0}
}

// Probe returns the last count observed for k and whether it is still
// fresh. A miss (ok == false) means either the key was never recorded or
// its entry aged out of the TTL window.
func (c *Cache) Probe(k string) (count int64, ok bool) {
	if c.disabled {
		return 0, false
	}
	return c.lru.Get(k)
}

// Update records a new observation for k, overwriting any prior entry and
// resetting its TTL clock.
func (c *Cache) Update(k string, count int64) {
	c.lru.Add(k, count)
}

// Invalidate removes k's entry, if present.
func (c *Cache) Invalidate(k string) {
	c.lru.Remove(k)
}

// Len reports how many entries are currently tracked (including any not
// yet lazily reaped past their TTL).
func (c *Cache) Len() int {
	return c.lru.Len()
}

package routing

import (
	"fmt"
	"sync"
	"time"

	"navtrack/internal/model"
)

// Cache is a bounded, time-expiring store for provider responses. Eviction
// is insertion-order once the capacity bound is exceeded; entries past the
// TTL are treated as misses and removed on read.
type Cache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]cacheEntry
	order   []string // insertion order, oldest first
	now     func() time.Time
}

type cacheEntry struct {
	value Result
	at    time.Time
}

// NewCache constructs a Cache. max <= 0 and ttl <= 0 select the defaults
// (100 entries, 30s).
func NewCache(max int, ttl time.Duration) *Cache {
	if max <= 0 {
		max = 100
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{max: max, ttl: ttl, entries: map[string]cacheEntry{}, now: time.Now}
}

// CacheKey derives the cache key from the endpoints rounded to 6 decimal
// places plus the routing profile.
func CacheKey(start, end model.Coordinate, profile string) string {
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f|%s", start.Lat, start.Lng, end.Lat, end.Lng, profile)
}

// Get returns the cached result for key, treating expired entries as misses.
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.at) > c.ttl {
		c.remove(key)
		return Result{}, false
	}
	return e.value, true
}

// Put stores a result, evicting the least-recently-inserted entry when the
// capacity bound is reached and the key is new.
func (c *Cache) Put(key string, v Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = cacheEntry{value: v, at: c.now()}
		return
	}
	if len(c.entries) >= c.max && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[key] = cacheEntry{value: v, at: c.now()}
	c.order = append(c.order, key)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

package ids

import "sync"

type cacheEntry struct {
	id      int64
	sortkey string
}

// boundedCache is a fixed-capacity map that evicts an arbitrary entry when
// full. Capacity 0 disables caching.
type boundedCache struct {
	capacity int
	entries  map[string]cacheEntry
}

func newBoundedCache(capacity int) *boundedCache {
	return &boundedCache{capacity: capacity, entries: make(map[string]cacheEntry)}
}

func (c *boundedCache) get(key string) (cacheEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

func (c *boundedCache) put(key string, e cacheEntry) {
	if c.capacity <= 0 {
		return
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		// map iteration order is unspecified, which gives random eviction
		for victim := range c.entries {
			delete(c.entries, victim)
			break
		}
	}
	c.entries[key] = e
}

func (c *boundedCache) deleteID(id int64) {
	for k, e := range c.entries {
		if e.id == id {
			delete(c.entries, k)
		}
	}
}

func (c *boundedCache) len() int {
	return len(c.entries)
}

func (c *boundedCache) clear() {
	c.entries = make(map[string]cacheEntry)
}

// hashSlot caches the table-hash map of the most recently touched id
type hashSlot struct {
	id     int64
	hashes map[string]string
	known  bool
}

// state is shared by a registry and every registry derived from it with
// WithQuerier.
type state struct {
	mu      sync.Mutex
	general *boundedCache
	props   *boundedCache
	slot    hashSlot
}

package dropcache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const keyPrefix = "drop_"

// Cache is a TTL cache of serialized drop payloads. Entries expire on their
// own after the configured TTL and are evicted early on note mutations.
type Cache struct {
	store *gocache.Cache
	ttl   time.Duration
}

// New returns a cache whose entries live for ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{
		store: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Get returns the cached payload for a drop id, if present and unexpired.
func (c *Cache) Get(dropID string) ([]byte, bool) {
	value, ok := c.store.Get(keyPrefix + dropID)
	if !ok {
		return nil, false
	}
	payload, ok := value.([]byte)
	return payload, ok
}

// Set stores a serialized payload under the drop id for the cache TTL.
func (c *Cache) Set(dropID string, payload []byte) {
	c.store.Set(keyPrefix+dropID, payload, c.ttl)
}

// Invalidate drops the cached payload for a drop id.
func (c *Cache) Invalidate(dropID string) {
	c.store.Delete(keyPrefix + dropID)
}

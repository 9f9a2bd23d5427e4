package profile

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache is an explicit TTL cache for profile lookups. Entries expire on
// read; there is no background sweeper. Safe for concurrent use.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[uuid.UUID]cacheEntry
}

type cacheEntry struct {
	profile *Profile
	expires time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]cacheEntry),
	}
}

func (c *Cache) Get(id uuid.UUID) (*Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, id)
		return nil, false
	}
	return e.profile, true
}

func (c *Cache) Put(id uuid.UUID, p *Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{profile: p, expires: c.now().Add(c.ttl)}
}

// Invalidate drops one entry, for callers that just mutated the profile.
func (c *Cache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

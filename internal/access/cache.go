package access

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dominioncraft/dominion/internal/territory"
)

// Key identifies one cached authorization decision.
type Key struct {
	PlayerID uuid.UUID
	X, Z     int32
	WorldID  uuid.UUID
	Perm     territory.Permission
}

// entry is immutable once written; invalidation replaces or removes it,
// never mutates in place.
type entry struct {
	allowed bool
	created int64 // unix nanos
}

// Cache is the short-TTL concurrent cache in front of the authorization
// computation. Reads are lock-free (sync.Map); every lookup TTL-checks the
// entry and expired ones are removed on sight. A soft size cap triggers a
// sweep of expired entries on write.
type Cache struct {
	ttl     int64 // nanos
	softCap int

	entries sync.Map // Key → *entry
	size    atomic.Int64
}

// NewCache creates a permission cache with the given TTL and soft size cap.
func NewCache(ttl time.Duration, softCap int) *Cache {
	return &Cache{ttl: ttl.Nanoseconds(), softCap: softCap}
}

// Get returns the cached decision for key. The second result is false on a
// miss or when the entry's TTL has elapsed (an entry written at t is live
// for reads strictly before t+TTL).
func (c *Cache) Get(key Key) (allowed, ok bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return false, false
	}
	e := v.(*entry)
	if time.Now().UnixNano()-e.created >= c.ttl {
		c.remove(key)
		return false, false
	}
	return e.allowed, true
}

// Put stores a freshly computed decision with a new timestamp.
func (c *Cache) Put(key Key, allowed bool) {
	if _, loaded := c.entries.Swap(key, &entry{allowed: allowed, created: time.Now().UnixNano()}); !loaded {
		if c.size.Add(1) > int64(c.softCap) {
			c.Sweep()
		}
	}
}

// InvalidatePlayer drops every cached decision for the player. Called on
// town join/leave and relation changes.
func (c *Cache) InvalidatePlayer(playerID uuid.UUID) {
	c.entries.Range(func(k, _ any) bool {
		if k.(Key).PlayerID == playerID {
			c.remove(k.(Key))
		}
		return true
	})
}

// InvalidateChunk drops every cached decision for the chunk. Called on
// ownership changes.
func (c *Cache) InvalidateChunk(worldID uuid.UUID, x, z int32) {
	c.entries.Range(func(k, _ any) bool {
		key := k.(Key)
		if key.WorldID == worldID && key.X == x && key.Z == z {
			c.remove(key)
		}
		return true
	})
}

// InvalidateTerritory is the coarse per-territory hook. The cache keys
// carry no territory id, so without a territory→chunk index this degrades
// to an expiry sweep once the cache is over its soft cap.
func (c *Cache) InvalidateTerritory(string) {
	if c.size.Load() > int64(c.softCap) {
		c.Sweep()
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.entries.Range(func(k, _ any) bool {
		c.remove(k.(Key))
		return true
	})
}

// Len returns the approximate number of live entries.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

// Sweep removes every expired entry.
func (c *Cache) Sweep() {
	now := time.Now().UnixNano()
	c.entries.Range(func(k, v any) bool {
		if now-v.(*entry).created >= c.ttl {
			c.remove(k.(Key))
		}
		return true
	})
}

// Start runs the periodic expiry sweep until the context is cancelled.
func (c *Cache) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache) remove(key Key) {
	if _, loaded := c.entries.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

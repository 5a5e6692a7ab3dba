package matching

import (
	"sync"

	"resonance/backend/internal/values"
)

// cacheKey identifies one pair-score computation. Profile versions and the
// preferences version are part of the key, so stale entries are simply never
// hit again after a write; Invalidate reclaims their memory.
type cacheKey struct {
	userA        string
	userB        string
	versionA     int64
	versionB     int64
	prefsVersion int64
}

// Cache memoizes pair scores with explicit, version-keyed invalidation.
// There is no ambient global state: callers own the cache instance and call
// Invalidate on profile or preference writes.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*PairScore
	byUser  map[string]map[cacheKey]struct{}
}

// NewCache creates an empty pair-score cache
func NewCache() *Cache {
	return &Cache{
		entries: make(map[cacheKey]*PairScore),
		byUser:  make(map[string]map[cacheKey]struct{}),
	}
}

func newCacheKey(a, b *values.Profile, prefsVersion int64) cacheKey {
	if a.UserID > b.UserID {
		a, b = b, a
	}
	return cacheKey{
		userA:        a.UserID,
		userB:        b.UserID,
		versionA:     a.Version,
		versionB:     b.Version,
		prefsVersion: prefsVersion,
	}
}

// Get returns the cached score for the pair at these exact profile and
// preference versions
func (c *Cache) Get(a, b *values.Profile, prefsVersion int64) (*PairScore, bool) {
	key := newCacheKey(a, b, prefsVersion)
	c.mu.RLock()
	defer c.mu.RUnlock()
	score, ok := c.entries[key]
	return score, ok
}

// Put stores a computed score for the pair at these versions
func (c *Cache) Put(a, b *values.Profile, prefsVersion int64, score *PairScore) {
	key := newCacheKey(a, b, prefsVersion)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = score
	c.index(key.userA, key)
	c.index(key.userB, key)
}

func (c *Cache) index(userID string, key cacheKey) {
	keys, ok := c.byUser[userID]
	if !ok {
		keys = make(map[cacheKey]struct{})
		c.byUser[userID] = keys
	}
	keys[key] = struct{}{}
}

// Invalidate drops every cached score involving the user. Called on profile
// edits and preference changes.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byUser[userID] {
		delete(c.entries, key)
		if key.userA != userID {
			delete(c.byUser[key.userA], key)
		}
		if key.userB != userID {
			delete(c.byUser[key.userB], key)
		}
	}
	delete(c.byUser, userID)
}

// Len returns the number of cached scores
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

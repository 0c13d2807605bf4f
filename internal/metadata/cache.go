package metadata

import (
	"sync"
	"time"
)

// AliasCache holds aliases per item in memory, including negative entries
// for lookups that failed.
type AliasCache struct {
	mu       sync.RWMutex
	items    map[string]aliasEntry
	ttl      time.Duration
	maxItems int
	now      func() time.Time
}

type aliasEntry struct {
	aliases  Aliases
	negative bool
	storedAt time.Time
}

// NewAliasCache creates a cache. A zero ttl keeps entries until invalidated.
func NewAliasCache(ttl time.Duration, maxItems int) *AliasCache {
	if maxItems <= 0 {
		maxItems = 5000
	}
	return &AliasCache{
		items:    make(map[string]aliasEntry),
		ttl:      ttl,
		maxItems: maxItems,
		now:      time.Now,
	}
}

func aliasKey(mediaType MediaType, imdbID string) string {
	return string(mediaType) + ":" + imdbID
}

func (c *AliasCache) expired(e aliasEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) > c.ttl
}

// Get returns the aliases for key. negative is set for remembered failures.
func (c *AliasCache) Get(key string) (aliases Aliases, negative, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.items[key]
	if !found || c.expired(e, c.now()) {
		return nil, false, false
	}
	return e.aliases, e.negative, true
}

// Set stores aliases for key.
func (c *AliasCache) Set(key string, aliases Aliases) {
	c.put(key, aliasEntry{aliases: aliases})
}

// SetNegative remembers that key could not be loaded.
func (c *AliasCache) SetNegative(key string) {
	c.put(key, aliasEntry{negative: true})
}

func (c *AliasCache) put(key string, e aliasEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evictOldest()
	}
	e.storedAt = c.now()
	c.items[key] = e
}

// Invalidate drops both the movie and the show entry of an id.
func (c *AliasCache) Invalidate(imdbID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, aliasKey(MediaMovie, imdbID))
	delete(c.items, aliasKey(MediaShow, imdbID))
}

// Clear removes all entries.
func (c *AliasCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]aliasEntry)
}

// Len returns the number of entries, expired ones included.
func (c *AliasCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evictOldest drops expired entries, then the oldest tenth. Caller holds the lock.
func (c *AliasCache) evictOldest() {
	now := c.now()
	for key, e := range c.items {
		if c.expired(e, now) {
			delete(c.items, key)
		}
	}
	if len(c.items) < c.maxItems {
		return
	}

	toRemove := max(c.maxItems/10, 1)
	oldest := make([]string, 0, toRemove)
	oldestTimes := make([]time.Time, 0, toRemove)
	for key, e := range c.items {
		if len(oldest) < toRemove {
			oldest = append(oldest, key)
			oldestTimes = append(oldestTimes, e.storedAt)
			continue
		}
		for i, t := range oldestTimes {
			if e.storedAt.Before(t) {
				oldest[i] = key
				oldestTimes[i] = e.storedAt
				break
			}
		}
	}
	for _, key := range oldest {
		delete(c.items, key)
	}
}

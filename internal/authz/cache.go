package authz

import (
	"container/list"
	"sync"
	"time"
)

// Cache holds resolved permission sets per (subject, scope), stamped with the
// store version they were computed against. A lookup hits only when the
// stored version equals the store's current version, so any mutation
// invalidates everything at once without per-entry tracking. Max entries and
// an optional TTL bound memory for inactive subjects.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	entries    map[cacheKey]*list.Element
	order      *list.List // front is most recently used

	now func() time.Time
}

type cacheKey struct {
	subject string
	scope   Scope
}

type cacheEntry struct {
	key     cacheKey
	set     PermissionSet
	version uint64
	touched time.Time
}

const defaultCacheSize = 4096

// NewCache builds a cache bounded to maxEntries; ttl zero disables
// time-based expiry.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheSize
	}
	return &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    map[cacheKey]*list.Element{},
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached set if it was computed at exactly the given version
// and has not expired. Stale entries are evicted on sight.
func (c *Cache) Get(subject string, scope Scope, version uint64) (PermissionSet, bool) {
	key := cacheKey{subject: subject, scope: scope}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if entry.version != version || (c.ttl > 0 && c.now().Sub(entry.touched) > c.ttl) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	entry.touched = c.now()
	c.order.MoveToFront(el)
	return entry.set, true
}

// Put stores a resolved set, evicting the least recently used entry when the
// cache is full.
func (c *Cache) Put(subject string, scope Scope, version uint64, set PermissionSet) {
	key := cacheKey{subject: subject, scope: scope}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.set = set
		entry.version = version
		entry.touched = c.now()
		c.order.MoveToFront(el)
		return
	}
	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	el := c.order.PushFront(&cacheEntry{
		key:     key,
		set:     set,
		version: version,
		touched: c.now(),
	})
	c.entries[key] = el
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

package domain

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// MetadataCacheOptions configures a MetadataCache.
type MetadataCacheOptions struct {
	// Capacity bounds the number of entries; <= 0 means unbounded.
	Capacity int
	// TTL is measured from the load that produced an entry; <= 0 disables expiry.
	TTL time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// OnEvict is called (outside the lock) for every entry dropped by the cache.
	OnEvict func(id OperationID, reason EvictionReason)
}

// MetadataCache provides thread-safe storage for execution metadata produced
// by Load. Entries are ordered by load time: when capacity is exceeded the
// least-recently-loaded entry is dropped, and lookups never refresh an entry.
type MetadataCache struct {
	mu sync.Mutex

	entries map[OperationID]*list.Element
	order   *list.List // front = most recently loaded

	capacity int
	ttl      time.Duration
	now      func() time.Time
	onEvict  func(OperationID, EvictionReason)
}

type cacheEntry struct {
	meta     ExecutionMetadata
	loadedAt time.Time
}

type eviction struct {
	id     OperationID
	reason EvictionReason
}

// NewMetadataCache creates a new empty metadata cache.
func NewMetadataCache(opts MetadataCacheOptions) *MetadataCache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MetadataCache{
		entries:  make(map[OperationID]*list.Element),
		order:    list.New(),
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		now:      now,
		onEvict:  opts.OnEvict,
	}
}

// Set stores metadata for its identifier. The entry is stamped with the
// current time unless LoadedAt is already set.
func (c *MetadataCache) Set(meta ExecutionMetadata) {
	c.mu.Lock()
	evicted := c.setLocked(meta)
	c.mu.Unlock()
	c.notify(evicted)
}

// SetAll stores a batch of metadata in order.
func (c *MetadataCache) SetAll(metas []ExecutionMetadata) {
	c.mu.Lock()
	var evicted []eviction
	for _, meta := range metas {
		evicted = append(evicted, c.setLocked(meta)...)
	}
	c.mu.Unlock()
	c.notify(evicted)
}

func (c *MetadataCache) setLocked(meta ExecutionMetadata) []eviction {
	stored := meta.Clone()
	if stored.LoadedAt.IsZero() {
		stored.LoadedAt = c.now()
	}
	entry := &cacheEntry{meta: stored, loadedAt: stored.LoadedAt}

	if elem, ok := c.entries[meta.ID]; ok {
		c.order.Remove(elem)
	}
	c.entries[meta.ID] = c.insertByLoadTime(entry)

	var evicted []eviction
	for c.capacity > 0 && c.order.Len() > c.capacity {
		oldest := c.order.Back()
		old := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.entries, old.meta.ID)
		evicted = append(evicted, eviction{id: old.meta.ID, reason: EvictionCapacity})
	}
	return evicted
}

// insertByLoadTime keeps the list sorted by load time. Fresh loads land at
// the front in O(1); imported entries with older stamps walk back.
func (c *MetadataCache) insertByLoadTime(entry *cacheEntry) *list.Element {
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if !elem.Value.(*cacheEntry).loadedAt.After(entry.loadedAt) {
			return c.order.InsertBefore(entry, elem)
		}
	}
	return c.order.PushBack(entry)
}

// Get returns a copy of the cached metadata. Expired entries are removed and
// reported as a miss.
func (c *MetadataCache) Get(id OperationID) (ExecutionMetadata, bool) {
	c.mu.Lock()
	elem, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return ExecutionMetadata{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.expired(entry) {
		c.order.Remove(elem)
		delete(c.entries, id)
		c.mu.Unlock()
		c.notify([]eviction{{id: id, reason: EvictionExpired}})
		return ExecutionMetadata{}, false
	}
	meta := entry.meta.Clone()
	c.mu.Unlock()
	return meta, true
}

// Has reports whether an unexpired entry exists.
func (c *MetadataCache) Has(id OperationID) bool {
	_, ok := c.Get(id)
	return ok
}

// Delete removes entries for the given identifiers.
func (c *MetadataCache) Delete(ids ...OperationID) {
	c.mu.Lock()
	var evicted []eviction
	for _, id := range ids {
		if elem, ok := c.entries[id]; ok {
			c.order.Remove(elem)
			delete(c.entries, id)
			evicted = append(evicted, eviction{id: id, reason: EvictionForgotten})
		}
	}
	c.mu.Unlock()
	c.notify(evicted)
}

// Clear removes all cached metadata.
func (c *MetadataCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[OperationID]*list.Element)
	c.order = list.New()
	c.mu.Unlock()
}

// Snapshot returns copies of all unexpired entries sorted by identifier.
func (c *MetadataCache) Snapshot() []ExecutionMetadata {
	c.mu.Lock()
	out := make([]ExecutionMetadata, 0, len(c.entries))
	var evicted []eviction
	for id, elem := range c.entries {
		entry := elem.Value.(*cacheEntry)
		if c.expired(entry) {
			c.order.Remove(elem)
			delete(c.entries, id)
			evicted = append(evicted, eviction{id: id, reason: EvictionExpired})
			continue
		}
		out = append(out, entry.meta.Clone())
	}
	c.mu.Unlock()
	c.notify(evicted)

	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Len returns the number of stored entries, including ones not yet found expired.
func (c *MetadataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Expired reports whether an entry loaded at loadedAt is expired now.
func (c *MetadataCache) Expired(loadedAt time.Time) bool {
	return c.ttl > 0 && !c.now().Before(loadedAt.Add(c.ttl))
}

// TTL returns the configured time to live.
func (c *MetadataCache) TTL() time.Duration {
	return c.ttl
}

// Stats returns cache statistics.
func (c *MetadataCache) Stats() MetadataCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := MetadataCacheStats{Entries: len(c.entries), Capacity: c.capacity, TTL: c.ttl}
	for _, elem := range c.entries {
		if elem.Value.(*cacheEntry).meta.ID.Kind == KindWorkflow {
			stats.Workflows++
		} else {
			stats.Operations++
		}
	}
	return stats
}

func (c *MetadataCache) expired(entry *cacheEntry) bool {
	return c.Expired(entry.loadedAt)
}

func (c *MetadataCache) notify(evicted []eviction) {
	if c.onEvict == nil {
		return
	}
	for _, ev := range evicted {
		c.onEvict(ev.id, ev.reason)
	}
}

// MetadataCacheStats provides statistics about the cache contents.
type MetadataCacheStats struct {
	Entries    int
	Operations int
	Workflows  int
	Capacity   int
	TTL        time.Duration
}

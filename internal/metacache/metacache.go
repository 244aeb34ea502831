// Package metacache implements the bounded xl.meta cache: an
// xxHash-bucketed hash table with chained collisions, an LRU eviction list
// bounded by entry count, and a per-entry TTL. Adapted from the fuse block
// cache's container/list LRU shape, generalized with hashed buckets and
// time-based expiry.
package metacache

import (
	"container/list"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/gridstore/core/internal/xlmeta"
)

// Stats counts cache activity.
type Stats struct {
	Hits uint64
	Misses uint64
	Evictions uint64
	Expired uint64
}

type entry struct {
	key string
	meta *xlmeta.XLMeta
	expiry time.Time
	lruElem *list.Element
}

// Cache is a thread-safe, size-bounded, TTL-expiring xl.meta cache keyed
// on "bucket/key" or "bucket/key/versionID".
type Cache struct {
	mu sync.RWMutex
	capacity int
	ttl time.Duration
	buckets map[uint64][]*entry // xxhash(key) -> chain, collisions chained
	lru *list.List
	stats Stats
}

// New creates a cache holding at most capacity entries, each valid for ttl
// after insertion or refresh.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		capacity: capacity,
		ttl: ttl,
		buckets: make(map[uint64][]*entry),
		lru: list.New(),
	}
}

func hashKey(key string) uint64 { return xxhash.Sum64String(key) }

// Get searches under a shared lock first.
// On a hit it upgrades to an exclusive lock only to move the entry to the
// front of the LRU list and refresh its expiry, so concurrent lookups
// search in parallel; a miss still takes the exclusive lock briefly to
// count itself.
func (c *Cache) Get(key string) (*xlmeta.XLMeta, bool) {
	h := hashKey(key)
	c.mu.RLock()
	e, found := lookup(c.buckets[h], key)
	expired := found && time.Now().After(e.expiry)
	c.mu.RUnlock()

	if !found {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}
	if expired {
		c.mu.Lock()
		c.removeLocked(h, key)
		c.stats.Expired++
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	e.expiry = time.Now().Add(c.ttl)
	c.lru.MoveToFront(e.lruElem)
	c.stats.Hits++
	c.mu.Unlock()
	return xlmeta.Clone(e.meta), true
}

func lookup(chain []*entry, key string) (*entry, bool) {
	for _, e := range chain {
		if e.key == key {
			return e, true
		}
	}
	return nil, false
}

// Put inserts or refreshes key, evicting the least-recently-used entry if
// the cache is at capacity. The cache owns a deep clone of meta so later
// mutation by the caller can never alias a cached copy.
func (c *Cache) Put(key string, meta *xlmeta.XLMeta) {
	h := hashKey(key)
	owned := xlmeta.Clone(meta)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := lookup(c.buckets[h], key); ok {
		e.meta = owned
		e.expiry = time.Now().Add(c.ttl)
		c.lru.MoveToFront(e.lruElem)
		return
	}

	e := &entry{key: key, meta: owned, expiry: time.Now().Add(c.ttl)}
	e.lruElem = c.lru.PushFront(e)
	c.buckets[h] = append(c.buckets[h], e)

	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*entry)
		c.removeLocked(hashKey(victim.key), victim.key)
		c.stats.Evictions++
	}
}

// Invalidate removes key if present, used on delete/overwrite so stale
// reads never surface after a write completes.
func (c *Cache) Invalidate(key string) {
	h := hashKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(h, key)
}

// removeLocked assumes c.mu is held for writing.
func (c *Cache) removeLocked(h uint64, key string) {
	chain := c.buckets[h]
	for i, e := range chain {
		if e.key != key {
			continue
		}
		c.lru.Remove(e.lruElem)
		chain = append(chain[:i], chain[i+1:]...)
		if len(chain) == 0 {
			delete(c.buckets, h)
		} else {
			c.buckets[h] = chain
		}
		return
	}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// StatsSnapshot returns a snapshot of the cache's activity counters.
func (c *Cache) StatsSnapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Package memory is an in-process LRU implementation of cache.Cache,
// adapted from the gateway's response cache: entries are evicted by
// recency once the cache reaches capacity, but unlike an insert-time TTL
// cache, freshness is judged at Lookup time against the caller's maxAge
// rather than an expiry computed at Write time.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/tensorzero/tensorzero-sub023/cache"
)

type item struct {
	key   string
	entry *cache.Entry
}

// LRU is a thread-safe, capacity-bounded, in-memory Cache.
type LRU struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
}

// New creates an LRU cache holding at most capacity entries.
func New(capacity int) *LRU {
	return &LRU{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Lookup returns the cached entry for key if present and no older than
// maxAge. maxAge <= 0 means "any age is fresh".
func (l *LRU) Lookup(_ context.Context, key string, maxAge time.Duration) (*cache.Entry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.items[key]
	if !ok {
		return nil, false, nil
	}
	it := elem.Value.(*item)
	if maxAge > 0 && time.Since(it.entry.WrittenAt) > maxAge {
		return nil, false, nil
	}
	l.evictList.MoveToFront(elem)
	return it.entry, true, nil
}

// Write inserts or replaces the entry for key, evicting the least
// recently used entry if the cache is at capacity.
func (l *LRU) Write(_ context.Context, key string, entry *cache.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.items[key]; ok {
		l.evictList.MoveToFront(elem)
		elem.Value.(*item).entry = entry
		return nil
	}

	if l.capacity > 0 && l.evictList.Len() >= l.capacity {
		oldest := l.evictList.Back()
		if oldest != nil {
			l.evictList.Remove(oldest)
			delete(l.items, oldest.Value.(*item).key)
		}
	}

	elem := l.evictList.PushFront(&item{key: key, entry: entry})
	l.items[key] = elem
	return nil
}

// Len returns the current number of cached entries.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evictList.Len()
}

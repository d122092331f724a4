package deviceserver

import (
	"container/list"
	"sync"
	"time"
)

// ReplayCache remembers which token seconds were already accepted.
// Entries expire after ttl; when full, the oldest entry is evicted.
type ReplayCache struct {
	mu       sync.Mutex
	items    map[int64]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type replayEntry struct {
	second    int64
	createdAt time.Time
}

// NewReplayCache creates a ReplayCache.
func NewReplayCache(capacity int, ttl time.Duration) *ReplayCache {
	return &ReplayCache{
		items:    make(map[int64]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// AddIfAbsent records second and reports whether it was new.
func (c *ReplayCache) AddIfAbsent(second int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, exists := c.items[second]; exists {
		entry := elem.Value.(*replayEntry)
		if now.Sub(entry.createdAt) < c.ttl {
			return false
		}
		c.order.Remove(elem)
		delete(c.items, second)
	}

	c.cleanupExpiredLocked(now)
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		delete(c.items, oldest.Value.(*replayEntry).second)
		c.order.Remove(oldest)
	}

	c.items[second] = c.order.PushFront(&replayEntry{second: second, createdAt: now})
	return true
}

// cleanupExpiredLocked drops expired entries, oldest first.
func (c *ReplayCache) cleanupExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		entry := elem.Value.(*replayEntry)
		if now.Sub(entry.createdAt) < c.ttl {
			break
		}
		prev := elem.Prev()
		delete(c.items, entry.second)
		c.order.Remove(elem)
		elem = prev
	}
}

// Size returns the number of remembered seconds.
func (c *ReplayCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

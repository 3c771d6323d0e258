package reviews

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Store is the review cache contract. Implementations must tolerate
// concurrent turns: Get and Put are atomic with respect to each other.
type Store interface {
	// Get returns the cached review if present and unexpired. A hit
	// promotes the entry to most-recently-used.
	Get(ctx context.Context, id string) (*ProfessorReview, bool)
	// Put inserts or overwrites. Overwriting counts as an access and
	// resets the entry's age.
	Put(ctx context.Context, id string, review *ProfessorReview)
}

// Cache is the in-process Store: a mutex-guarded LRU with a fixed TTL.
// It holds at most maxEntries records; entries older than ttl are treated
// as absent and deleted on the access that finds them. State is rebuilt
// from empty on process restart.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	entries    map[string]*list.Element
	order      *list.List // front is most recently used

	now func() time.Time
}

type cacheEntry struct {
	id         string
	review     *ProfessorReview
	insertedAt time.Time
}

func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1500
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		now:        time.Now,
	}
}

func (c *Cache) Get(_ context.Context, id string) (*ProfessorReview, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.insertedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.entries, id)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry.review, true
}

func (c *Cache) Put(_ context.Context, id string, review *ProfessorReview) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.review = review
		entry.insertedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	c.entries[id] = c.order.PushFront(&cacheEntry{
		id:         id,
		review:     review,
		insertedAt: c.now(),
	})

	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).id)
		}
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

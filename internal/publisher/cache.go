package publisher

import (
	"sync"
	"time"
)

// suppressionCache remembers when an alert signature was last published, so
// repeat candidates within the suppression window skip the store round-trip.
// The store check stays authoritative; this is a bounded fast path, purged
// whenever an acknowledgment could lift a suppression.
type suppressionCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	head       *cacheEntry // most recently used
	tail       *cacheEntry // least recently used
}

type cacheEntry struct {
	key         string
	publishedAt time.Time
	prev        *cacheEntry
	next        *cacheEntry
}

func newSuppressionCache(maxEntries int) *suppressionCache {
	return &suppressionCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

// seenSince reports whether the signature was published at or after the
// cutoff.
func (c *suppressionCache) seenSince(key string, cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.moveToFront(e)
	return !e.publishedAt.Before(cutoff)
}

func (c *suppressionCache) record(key string, publishedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.publishedAt = publishedAt
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, publishedAt: publishedAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// purge drops every entry. Called after acknowledgments, which may lift a
// suppression the cache would otherwise keep enforcing.
func (c *suppressionCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.head = nil
	c.tail = nil
}

func (c *suppressionCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *suppressionCache) addToFront(e *cacheEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *suppressionCache) remove(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *suppressionCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

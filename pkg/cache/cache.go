// Package cache provides the bounded result cache used by the bot detector.
//
// ResultCache maps a User-Agent string to its classification. It evicts the
// least recently used entry when full and treats entries older than the
// configured TTL as absent. Expiry is enforced lazily on Get; Sweep (and the
// optional background sweeper) only reclaims memory for keys that are never
// looked up again.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
)

type entry struct {
	key        string
	result     common.Result
	insertedAt time.Time
}

// ResultCache is a thread-safe LRU cache with per-entry time-to-live.
type ResultCache struct {
	capacity int
	ttl      time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List // front is most recently used
}

// New creates a ResultCache holding at most capacity entries for at most ttl each.
// A capacity <= 0 yields a cache that stores nothing. A ttl <= 0 disables expiry.
// A nil clock uses the wall clock and a nil logger disables logging.
func New(capacity int, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *ResultCache {
	if capacity < 0 {
		capacity = 0
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		capacity: capacity,
		ttl:      ttl,
		clock:    clk,
		logger:   logger,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Capacity returns the maximum number of entries.
func (c *ResultCache) Capacity() int { return c.capacity }

// TTL returns the maximum age of an entry.
func (c *ResultCache) TTL() time.Duration { return c.ttl }

// Get returns the cached result for key and marks it as recently used.
// Expired entries are removed and reported as missing.
func (c *ResultCache) Get(key string) (common.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return common.Result{}, false
	}
	e := elem.Value.(*entry)
	if c.expired(e, c.clock.Now()) {
		c.removeElement(elem)
		return common.Result{}, false
	}
	c.eviction.MoveToFront(elem)
	return e.result.Clone(), true
}

// Put stores result under key as the most recently used entry.
// If key is new and the cache is full, the least recently used entry is evicted first.
// Re-inserting an existing key replaces its result and refreshes its timestamp.
func (c *ResultCache) Put(key string, result common.Result) {
	if c.capacity == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.result = result.Clone()
		e.insertedAt = now
		c.eviction.MoveToFront(elem)
		return
	}

	if c.eviction.Len() >= c.capacity {
		c.evictOldest()
	}
	elem := c.eviction.PushFront(&entry{key: key, result: result.Clone(), insertedAt: now})
	c.items[key] = elem
}

// Len returns the current number of entries, expired ones included until they
// are looked up or swept.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Clear removes all entries.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
}

// Sweep removes every expired entry and returns how many were removed.
func (c *ResultCache) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for elem := c.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*entry), now) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled or the
// returned stop function is called. A non-positive interval starts nothing.
func (c *ResultCache) StartSweeper(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := c.clock.Ticker(interval)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.Sweep(); removed > 0 {
					c.logger.Debug("Swept expired cache entries",
						zap.Int("removed", removed),
						zap.Int("remaining", c.Len()),
					)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Must be called with lock held.
func (c *ResultCache) expired(e *entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.insertedAt) > c.ttl
}

// Must be called with lock held.
func (c *ResultCache) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// Must be called with lock held.
func (c *ResultCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}

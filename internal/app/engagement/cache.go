package engagement

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/infra/metrics"
)

const (
	// DefaultMaxProfiles bounds how many profiles stay loaded at once.
	DefaultMaxProfiles = 10_000

	// DefaultProfileIdle is how long an unused profile stays loaded.
	DefaultProfileIdle = 10 * time.Minute

	defaultReapInterval = 30 * time.Second
)

// ─── Profile Cache (LRU + Reference Counting) ───────────────────────────────
// Hash map + doubly-linked list. Profiles in use are never evicted, so the
// cap is soft while every slot is busy.

type profileCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lru     *list.List
	limit   int
	idle    time.Duration
	clock   domain.Clock
}

type cacheEntry struct {
	id       string
	profile  *profile
	refs     int
	element  *list.Element
	lastUsed time.Time
}

func newProfileCache(limit int, idle time.Duration, clock domain.Clock) *profileCache {
	if limit <= 0 {
		limit = DefaultMaxProfiles
	}
	if idle <= 0 {
		idle = DefaultProfileIdle
	}
	return &profileCache{
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
		limit:   limit,
		idle:    idle,
		clock:   clock,
	}
}

// acquire returns the profile's entry, creating an unloaded one on a miss.
// Callers must release it.
func (c *profileCache) acquire(id string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if e, ok := c.entries[id]; ok {
		e.refs++
		e.lastUsed = now
		c.lru.MoveToFront(e.element)
		return e
	}

	for len(c.entries) >= c.limit && c.evictOne() {
	}

	e := &cacheEntry{id: id, profile: &profile{}, refs: 1, lastUsed: now}
	e.element = c.lru.PushFront(e)
	c.entries[id] = e
	metrics.ProfilesActive.Set(float64(len(c.entries)))
	return e
}

func (c *profileCache) release(e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	e.lastUsed = c.clock.Now()
}

// evictOne removes the least-recently-used profile nobody holds.
func (c *profileCache) evictOne() bool {
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*cacheEntry)
		if e.refs == 0 {
			c.drop(e)
			metrics.ProfileEvictions.WithLabelValues("capacity").Inc()
			return true
		}
	}
	return false
}

// drop unlinks an entry. A holder keeps working on its copy; revisions on
// save keep that copy from overwriting newer state.
func (c *profileCache) drop(e *cacheEntry) {
	if cur, ok := c.entries[e.id]; !ok || cur != e {
		return
	}
	c.lru.Remove(e.element)
	delete(c.entries, e.id)
	metrics.ProfilesActive.Set(float64(len(c.entries)))
}

func (c *profileCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		c.drop(e)
	}
}

// reap drops profiles unused for longer than the idle timeout.
func (c *profileCache) reap() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for el := c.lru.Back(); el != nil; {
		e := el.Value.(*cacheEntry)
		el = el.Prev()
		if e.refs == 0 && now.Sub(e.lastUsed) > c.idle {
			c.drop(e)
			n++
		}
	}
	if n > 0 {
		metrics.ProfileEvictions.WithLabelValues("idle").Add(float64(n))
	}
	return n
}

func (c *profileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// idleReaper runs reap every interval until ctx is done.
func (c *profileCache) idleReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reap()
		}
	}
}

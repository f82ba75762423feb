package session

import (
	"slices"
	"sync"
	"time"

	"turnstile/internal/clock"
	"turnstile/pkg/core"
)

// Cache keeps successful outcomes of cacheable endpoints for a short TTL.
// It is safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
	clock clock.Clock
}

type cacheItem struct {
	outcome   *core.Outcome
	expiresAt time.Time
}

// NewCache creates a Cache whose entries default to ttl.
func NewCache(ttl time.Duration, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{
		items: make(map[string]cacheItem),
		ttl:   ttl,
		clock: clk,
	}
}

// Get returns a copy of the cached outcome, or false when absent or expired.
func (c *Cache) Get(key string) (*core.Outcome, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(item.expiresAt) {
		c.Delete(key)
		return nil, false
	}
	return cloneOutcome(item.outcome), true
}

// Set stores an outcome. A zero ttl uses the cache default.
func (c *Cache) Set(key string, outcome *core.Outcome, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	stored := cloneOutcome(outcome)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{outcome: stored, expiresAt: c.clock.Now().Add(ttl)}
}

// cloneOutcome copies o deeply enough that callers cannot reach cached state.
func cloneOutcome(o *core.Outcome) *core.Outcome {
	out := *o
	out.Headers = o.Headers.Clone()
	out.Body = slices.Clone(o.Body)
	return &out
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheItem)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// cacheKey identifies a call by endpoint and its canonical query encoding.
func cacheKey(endpointID string, params core.Params) string {
	qs := core.NewRequest("", "").SetQueryParams(params).QueryString()
	if qs == "" {
		return endpointID
	}
	return endpointID + "?" + qs
}

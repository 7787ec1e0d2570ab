// Package cache provides the in-memory TTL cache tiers used by the
// ingestion pipeline and the aggregation engine. Each tier owns its own
// mutex-guarded map and its own sweep loop; tiers are injected as
// dependencies so tests get isolated instances.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// TTLCache is a mutex-guarded map with per-entry expiry and periodic sweep
// eviction. Setting an existing key refreshes its expiry, so idle-based
// tiers (session affinity) expire only when nothing touches them.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// NewTTLCache creates a cache whose entries live for ttl after their last Set.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Get returns the live value for key. Expired entries are misses; the sweep
// loop reclaims their memory later.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, refreshing its expiry.
func (c *TTLCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit lifetime.
func (c *TTLCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every entry whose key starts with prefix. Used for
// website-scoped invalidation of report caches.
func (c *TTLCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep evicts entries that expired before now and reports how many went.
func (c *TTLCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (c *TTLCache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Tiers bundles the cache tiers shared by the pipeline and the engine.
type Tiers struct {
	Website *TTLCache // tracking-id -> website config
	Visitor *TTLCache // visitor hash -> visitor record id
	Session *TTLCache // visitor hash -> session affinity state
	Report  *TTLCache // record pulls + derived metrics for the engine
}

// NewTiers builds the standard tier set.
func NewTiers(websiteTTL, visitorTTL, sessionTTL, reportTTL time.Duration) *Tiers {
	return &Tiers{
		Website: NewTTLCache(websiteTTL),
		Visitor: NewTTLCache(visitorTTL),
		Session: NewTTLCache(sessionTTL),
		Report:  NewTTLCache(reportTTL),
	}
}

// StartSweepers launches the background sweep loops: session affinity and
// the identity caches every 5 minutes, report cache once a minute.
func (t *Tiers) StartSweepers(ctx context.Context) {
	t.Website.StartSweeper(ctx, 5*time.Minute)
	t.Visitor.StartSweeper(ctx, 5*time.Minute)
	t.Session.StartSweeper(ctx, 5*time.Minute)
	t.Report.StartSweeper(ctx, time.Minute)
}

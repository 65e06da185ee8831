package cache

import (
	"sync"
	"time"

	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
)

// PlanResolverCache memoizes effective-plan lookups keyed by owner. Entries
// carry a short TTL; the quota guard additionally invalidates an owner's entry
// before confirming a deny, so a stale entry can only ever defer an allow, not
// manufacture one.
type PlanResolverCache interface {
	Get(ownerID snowflake.ID) (plandomain.Plan, bool)
	Set(ownerID snowflake.ID, plan plandomain.Plan, ttl time.Duration)
	Invalidate(ownerID snowflake.ID)
}

type planEntry struct {
	plan      plandomain.Plan
	expiresAt time.Time
}

type planCache struct {
	mu      sync.RWMutex
	entries map[snowflake.ID]planEntry
	now     func() time.Time
}

// NewPlanResolverCache constructs the cache used by the quota guard.
func NewPlanResolverCache() PlanResolverCache {
	return &planCache{
		entries: make(map[snowflake.ID]planEntry),
		now:     time.Now,
	}
}

func (c *planCache) Get(ownerID snowflake.ID) (plandomain.Plan, bool) {
	c.mu.RLock()
	entry, ok := c.entries[ownerID]
	c.mu.RUnlock()
	if !ok {
		return plandomain.Plan{}, false
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.Invalidate(ownerID)
		return plandomain.Plan{}, false
	}
	return entry.plan, true
}

func (c *planCache) Set(ownerID snowflake.ID, plan plandomain.Plan, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[ownerID] = planEntry{plan: plan, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *planCache) Invalidate(ownerID snowflake.ID) {
	c.mu.Lock()
	delete(c.entries, ownerID)
	c.mu.Unlock()
}

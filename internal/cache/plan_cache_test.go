package cache

import (
	"testing"
	"time"

	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
)

func TestPlanCacheExpiresEntries(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := &planCache{
		entries: make(map[snowflake.ID]planEntry),
		now:     func() time.Time { return now },
	}

	owner := snowflake.ID(7)
	c.Set(owner, plandomain.Plan{Code: "pro"}, 30*time.Second)

	plan, ok := c.Get(owner)
	if !ok || plan.Code != "pro" {
		t.Fatalf("expected cached plan, got ok=%v plan=%+v", ok, plan)
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get(owner); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestPlanCacheInvalidate(t *testing.T) {
	c := NewPlanResolverCache()
	owner := snowflake.ID(8)

	c.Set(owner, plandomain.Plan{Code: "free"}, time.Minute)
	c.Invalidate(owner)

	if _, ok := c.Get(owner); ok {
		t.Fatal("expected invalidated entry to miss")
	}
}

package reporting

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache fronts a reporting Service with redis for the hot dashboard reads.
// Redis failures degrade to direct reads; the aggregator stays the source of
// truth.
type Cache struct {
	inner Service
	rdb   *redis.Client
	ttl   time.Duration
}

var _ Service = (*Cache)(nil)

func NewCache(inner Service, rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *Cache) OwnerDashboard(ctx context.Context, ownerID string) (OwnerDashboard, error) {
	key := "dash:owner:" + ownerID
	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var dash OwnerDashboard
		if json.Unmarshal([]byte(raw), &dash) == nil {
			return dash, nil
		}
	}
	dash, err := c.inner.OwnerDashboard(ctx, ownerID)
	if err != nil {
		return OwnerDashboard{}, err
	}
	if raw, err := json.Marshal(dash); err == nil {
		// Best effort; a failed set only costs the next read.
		c.rdb.Set(ctx, key, raw, c.ttl)
	}
	return dash, nil
}

func (c *Cache) MostActiveSports(ctx context.Context) ([]SportCount, error) {
	const key = "stats:sports"
	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var out []SportCount
		if json.Unmarshal([]byte(raw), &out) == nil {
			return out, nil
		}
	}
	out, err := c.inner.MostActiveSports(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(out); err == nil {
		c.rdb.Set(ctx, key, raw, c.ttl)
	}
	return out, nil
}

// Invalidate drops cached entries for an owner after writes that affect
// their rollup.
func (c *Cache) Invalidate(ctx context.Context, ownerID string) {
	c.rdb.Del(ctx, "dash:owner:"+ownerID, "stats:sports")
}

// The remaining reads change too rarely to be worth caching; pass through.

func (c *Cache) BookingActivity(ctx context.Context) ([]TrendPoint, error) {
	return c.inner.BookingActivity(ctx)
}

func (c *Cache) RegistrationTrends(ctx context.Context) ([]TrendPoint, error) {
	return c.inner.RegistrationTrends(ctx)
}

func (c *Cache) ApprovalTrends(ctx context.Context) ([]TrendPoint, error) {
	return c.inner.ApprovalTrends(ctx)
}

func (c *Cache) GlobalStats(ctx context.Context) (GlobalStats, error) {
	return c.inner.GlobalStats(ctx)
}

func (c *Cache) RefreshOwnerMetrics(ctx context.Context, ownerID string) (OwnerMetrics, error) {
	m, err := c.inner.RefreshOwnerMetrics(ctx, ownerID)
	if err != nil {
		return OwnerMetrics{}, err
	}
	c.Invalidate(ctx, ownerID)
	return m, nil
}

package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProjectionCache is a Redis read-through cache for serialized line-page
// projections. Reads check Redis first and fall back to recomputation;
// merges invalidate the affected line. A cache failure is never an error
// to the caller — the projection is just recomputed.
type ProjectionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewProjectionCache creates a cache with the given entry TTL.
func NewProjectionCache(rdb *redis.Client, ttl time.Duration) *ProjectionCache {
	return &ProjectionCache{rdb: rdb, ttl: ttl}
}

// GetLinePage returns the cached projection JSON for a line, if present.
func (c *ProjectionCache) GetLinePage(ctx context.Context, lineID string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, linePageKey(lineID)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetLinePage stores a projection JSON for a line.
func (c *ProjectionCache) SetLinePage(ctx context.Context, lineID string, payload []byte) {
	c.rdb.Set(ctx, linePageKey(lineID), payload, c.ttl)
}

// InvalidateLine drops the cached projection for a line. Called after
// every merge touching it; the next read re-populates.
func (c *ProjectionCache) InvalidateLine(ctx context.Context, lineID string) {
	c.rdb.Del(ctx, linePageKey(lineID))
}

func linePageKey(lineID string) string {
	return "linepage:" + lineID
}

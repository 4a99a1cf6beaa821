package coordination

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// snapshotTTL is how long a cached overview stays valid. Overviews are
// advisory dashboards; a few seconds of staleness is acceptable and keeps
// the full-scan Overview query off the hot path when many agents poll.
const snapshotTTL = 5 * time.Second

// SnapshotCache caches CoordinationOverview results in Redis. A nil cache
// disables caching entirely.
type SnapshotCache struct {
	client *redis.Client
}

// NewSnapshotCache connects to Redis at addr; returns nil (cache disabled)
// when the server is unreachable, since the overview works fine without it.
func NewSnapshotCache(addr string) *SnapshotCache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil
	}
	return &SnapshotCache{client: client}
}

// Close releases the Redis connection.
func (c *SnapshotCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func overviewKey(projectID string) string {
	return "coord:overview:" + projectID
}

func (c *SnapshotCache) getOverview(ctx context.Context, projectID string) (CoordinationOverview, bool) {
	if c == nil {
		return CoordinationOverview{}, false
	}
	data, err := c.client.Get(ctx, overviewKey(projectID)).Bytes()
	if err != nil {
		return CoordinationOverview{}, false
	}
	var out CoordinationOverview
	if err := json.Unmarshal(data, &out); err != nil {
		return CoordinationOverview{}, false
	}
	return out, true
}

func (c *SnapshotCache) putOverview(ctx context.Context, projectID string, overview CoordinationOverview) {
	if c == nil {
		return
	}
	data, err := json.Marshal(overview)
	if err != nil {
		return
	}
	c.client.Set(ctx, overviewKey(projectID), data, snapshotTTL)
}

// invalidate drops a project's cached overview after any claim mutation.
func (c *SnapshotCache) invalidate(ctx context.Context, projectID string) {
	if c == nil {
		return
	}
	c.client.Del(ctx, overviewKey(projectID))
}

package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "catalog:tour:"

// Cache keeps JSON snapshots of tours in Redis. A nil *Cache or a nil
// client turns every call into a miss.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// Lookup fetches ids in one MGET. Ids that are absent or hold an
// undecodable value are returned in missing.
func (c *Cache) Lookup(ctx context.Context, ids []string) (hits map[string]Tour, missing []string, err error) {
	hits = make(map[string]Tour, len(ids))
	if !c.enabled() || len(ids) == 0 {
		return hits, ids, nil
	}
	vals, err := c.client.MGet(ctx, keysFor(ids)...).Result()
	if err != nil {
		return hits, ids, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		var t Tour
		if !ok || json.Unmarshal([]byte(raw), &t) != nil {
			missing = append(missing, ids[i])
			continue
		}
		hits[ids[i]] = t
	}
	return hits, missing, nil
}

// Store writes tours in a single pipeline.
func (c *Cache) Store(ctx context.Context, tours []Tour) error {
	if !c.enabled() || len(tours) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range tours {
			data, err := json.Marshal(t)
			if err != nil {
				return err
			}
			pipe.Set(ctx, cachePrefix+t.ID, data, c.ttl)
		}
		return nil
	})
	return err
}

// Invalidate drops cached tours; the seeder calls it after upserts.
func (c *Cache) Invalidate(ctx context.Context, ids ...string) error {
	if !c.enabled() || len(ids) == 0 {
		return nil
	}
	return c.client.Del(ctx, keysFor(ids)...).Err()
}

func keysFor(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cachePrefix + id
	}
	return keys
}

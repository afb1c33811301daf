// Package redis is a distributed implementation of cache.Cache backed by
// Redis, for deployments that run multiple gateway replicas sharing one
// inference cache. Entries are stored as JSON with a fixed outer TTL used
// only as a backstop against unbounded growth; freshness for a given
// lookup is still judged against the caller's maxAge, same as the
// in-memory backend.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tensorzero/tensorzero-sub023/cache"
	"github.com/tensorzero/tensorzero-sub023/providers"
)

// Cache is a Redis-backed cache.Cache.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	backstop  time.Duration
}

// New wraps an existing *redis.Client. keyPrefix namespaces keys (e.g.
// "tz:cache:") and backstop bounds how long an entry may live regardless
// of whether it is ever read again; pass 0 to disable the backstop.
func New(client *redis.Client, keyPrefix string, backstop time.Duration) *Cache {
	return &Cache{client: client, keyPrefix: keyPrefix, backstop: backstop}
}

type wireEntry struct {
	Response  *providers.Response `json:"response"`
	WrittenAt time.Time           `json:"written_at"`
}

func (c *Cache) Lookup(ctx context.Context, key string, maxAge time.Duration) (*cache.Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache/redis: lookup: %w", err)
	}

	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, false, fmt.Errorf("cache/redis: decoding entry: %w", err)
	}
	if maxAge > 0 && time.Since(w.WrittenAt) > maxAge {
		return nil, false, nil
	}
	return &cache.Entry{Response: w.Response, WrittenAt: w.WrittenAt}, true, nil
}

func (c *Cache) Write(ctx context.Context, key string, entry *cache.Entry) error {
	raw, err := json.Marshal(wireEntry{Response: entry.Response, WrittenAt: entry.WrittenAt})
	if err != nil {
		return fmt.Errorf("cache/redis: encoding entry: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, raw, c.backstop).Err(); err != nil {
		return fmt.Errorf("cache/redis: write: %w", err)
	}
	return nil
}

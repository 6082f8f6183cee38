package reranker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// cacheTTL is the lifetime of every cached rerank ordering, matching the
// teacher's redis_cache.go default TTL; RerankerConfig has no setting for it.
const cacheTTL = 1 * time.Hour

// cachingReranker wraps a Reranker with a Redis-backed response cache keyed
// by (query hash, candidate-id-set hash), grounded on
// internal/skills/redis_cache.go's UniversalClient/TTL/redis.Nil idiom.
type cachingReranker struct {
	inner Reranker
	cache *redisCache
}

func (c *cachingReranker) Rerank(ctx context.Context, query string, items []Item) ([]Item, error) {
	key := cacheKey(query, items)
	if cached, ok := c.cache.get(ctx, key); ok {
		return applyCachedOrder(items, cached), nil
	}

	out, err := c.inner.Rerank(ctx, query, items)
	if err != nil {
		return nil, err
	}

	order := make([]string, len(out))
	for i, it := range out {
		order[i] = it.ID
	}
	c.cache.set(ctx, key, order)
	return out, nil
}

// applyCachedOrder reorders items to match a cached id order, appending any
// item absent from the cached order (e.g. a new candidate) at the end so
// the reranker never silently drops items.
func applyCachedOrder(items []Item, order []string) []Item {
	byID := make(map[string]Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	out := make([]Item, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, id := range order {
		if it, ok := byID[id]; ok {
			out = append(out, it)
			seen[id] = true
		}
	}
	for _, it := range items {
		if !seen[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

func cacheKey(query string, items []Item) string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(query))
	for _, id := range ids {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return "rerank:" + hex.EncodeToString(h.Sum(nil))
}

type redisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func newRedisCache(dsn string) (*redisCache, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse reranker redis dsn: %w", err)
	}
	client := redis.NewClient(opts)
	return &redisCache{client: client, ttl: cacheTTL}, nil
}

func (c *redisCache) get(ctx context.Context, key string) ([]string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("reranker_cache_get_error")
		}
		return nil, false
	}
	var order []string
	if err := json.Unmarshal([]byte(val), &order); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("reranker_cache_unmarshal_error")
		return nil, false
	}
	return order, true
}

func (c *redisCache) set(ctx context.Context, key string, order []string) {
	data, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("reranker_cache_set_error")
	}
}

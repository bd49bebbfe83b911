package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache stores resolved media URLs. Entries are only ever added.
type Cache interface {
	Get(ctx context.Context, key Key) (string, bool)
	Set(ctx context.Context, key Key, url string)
}

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[Key]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[Key]string{}}
}

func (c *MemoryCache) Get(_ context.Context, key Key) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.entries[key]
	return url, ok
}

func (c *MemoryCache) Set(_ context.Context, key Key, url string) {
	c.mu.Lock()
	c.entries[key] = url
	c.mu.Unlock()
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares resolved URLs between sessions. Redis failures are
// treated as misses.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, log zerolog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "media_url_"
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log.With().Str("component", "media-redis").Logger(),
	}
}

func (c *RedisCache) Get(ctx context.Context, key Key) (string, bool) {
	url, err := c.client.Get(ctx, c.prefix+key.String()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug().Err(err).Str("key", key.String()).Msg("redis get failed")
		}
		return "", false
	}
	return url, true
}

func (c *RedisCache) Set(ctx context.Context, key Key, url string) {
	if err := c.client.Set(ctx, c.prefix+key.String(), url, c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Str("key", key.String()).Msg("redis set failed")
	}
}

// TieredCache reads through a fast local cache to a shared one and copies
// shared hits into the local cache.
type TieredCache struct {
	local  Cache
	shared Cache
}

func NewTieredCache(local, shared Cache) *TieredCache {
	return &TieredCache{local: local, shared: shared}
}

func (c *TieredCache) Get(ctx context.Context, key Key) (string, bool) {
	if url, ok := c.local.Get(ctx, key); ok {
		return url, true
	}
	url, ok := c.shared.Get(ctx, key)
	if ok {
		c.local.Set(ctx, key, url)
	}
	return url, ok
}

func (c *TieredCache) Set(ctx context.Context, key Key, url string) {
	c.local.Set(ctx, key, url)
	c.shared.Set(ctx, key, url)
}

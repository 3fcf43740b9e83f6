package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SharedCache is a Redis-backed Cache for deployments where several
// processes serve the same agents. Entries expire by TTL instead of LRU
// counting; invalidation flushes the keyspace prefix, mirroring the
// in-process cache's blunt full clear.
//
// Redis errors degrade to cache misses: the graph store stays the source
// of truth and a flaky cache must never fail a read.
type SharedCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

const sharedKeyPrefix = "ghostkg:cache:"

// NewShared connects to Redis at the given URL.
func NewShared(url string, ttl time.Duration, logger *zap.Logger) (*SharedCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger.Info("shared result cache connected", zap.Duration("ttl", ttl))
	return &SharedCache{client: client, ttl: ttl, logger: logger}, nil
}

func sharedKey(parts ...string) string {
	return sharedKeyPrefix + strconv.FormatUint(key(parts...), 16)
}

func (c *SharedCache) GetContext(agent, topic string) (string, bool) {
	v, err := c.client.Get(context.Background(), sharedKey("context", agent, topic)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.Error(err))
		}
		return "", false
	}
	return v, true
}

func (c *SharedCache) PutContext(agent, topic, contextStr string) {
	if err := c.client.Set(context.Background(), sharedKey("context", agent, topic), contextStr, c.ttl).Err(); err != nil {
		c.logger.Warn("cache put failed", zap.Error(err))
	}
}

func (c *SharedCache) GetMemoryView(agent, topic, timeFilter string) ([]byte, bool) {
	v, err := c.client.Get(context.Background(), sharedKey("memory", agent, topic, timeFilter)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.Error(err))
		}
		return nil, false
	}
	return v, true
}

func (c *SharedCache) PutMemoryView(agent, topic, timeFilter string, data []byte) {
	if err := c.client.Set(context.Background(), sharedKey("memory", agent, topic, timeFilter), data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache put failed", zap.Error(err))
	}
}

// InvalidateAgent deletes every ghostkg cache key. Digest keys cannot be
// attributed to one agent, so the clear is deliberately blunt.
func (c *SharedCache) InvalidateAgent(agent string) int {
	return c.deleteByPrefix()
}

// Clear deletes every ghostkg cache key.
func (c *SharedCache) Clear() {
	c.deleteByPrefix()
}

func (c *SharedCache) deleteByPrefix() int {
	ctx := context.Background()
	var deleted int
	iter := c.client.Scan(ctx, 0, sharedKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache invalidation scan failed", zap.Error(err))
	}
	return deleted
}

// Close releases the Redis connection.
func (c *SharedCache) Close() error { return c.client.Close() }

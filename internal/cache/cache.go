// Package cache provides the two-tier response/tool cache and the
// minute/day rate limiter backing the chat pipeline. Redis is the
// authoritative tier when configured; a bounded in-process map keeps the
// service degraded-but-working when it is not.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealhound/dealhound/pkg/logging"
)

const memoryCapacity = 1000

// Config controls cache TTLs per entry type.
type Config struct {
	ExactTTL time.Duration
	ToolTTL  time.Duration
}

// Stats is a snapshot for the health endpoint.
type Stats struct {
	RedisConnected bool  `json:"redisConnected"`
	MemoryEntries  int   `json:"memoryEntries"`
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
}

// Cache is the two-tier read-through cache for exact-query responses and
// tool results.
type Cache struct {
	rdb    *redis.Client
	mem    *memoryStore
	cfg    Config
	logger *logging.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a cache. rdb may be nil, leaving only the in-memory tier.
func New(rdb *redis.Client, cfg Config, logger *logging.Logger) *Cache {
	if cfg.ExactTTL <= 0 {
		cfg.ExactTTL = 300 * time.Second
	}
	if cfg.ToolTTL <= 0 {
		cfg.ToolTTL = 120 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		rdb:    rdb,
		mem:    newMemoryStore(memoryCapacity),
		cfg:    cfg,
		logger: logger,
	}
}

// hashKey normalizes and hashes the input so near-duplicate queries share an
// entry and key length stays bounded.
func hashKey(namespace, input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	sum := sha256.Sum256([]byte(normalized))
	return "chat:" + namespace + ":" + hex.EncodeToString(sum[:16])
}

// GetResponse returns a cached full response for an exact query.
func (c *Cache) GetResponse(ctx context.Context, query string) ([]byte, bool) {
	return c.get(ctx, hashKey("exact", query))
}

// SetResponse caches a full response for an exact query.
func (c *Cache) SetResponse(ctx context.Context, query string, payload []byte) {
	c.set(ctx, hashKey("exact", query), payload, c.cfg.ExactTTL)
}

// GetTool returns a cached tool result for a tool name and argument blob.
func (c *Cache) GetTool(ctx context.Context, tool string, args []byte) ([]byte, bool) {
	return c.get(ctx, hashKey("tool", tool+":"+string(args)))
}

// SetTool caches a tool result.
func (c *Cache) SetTool(ctx context.Context, tool string, args []byte, payload []byte) {
	c.set(ctx, hashKey("tool", tool+":"+string(args)), payload, c.cfg.ToolTTL)
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			c.hits.Add(1)
			return data, true
		}
		if err != redis.Nil {
			c.logger.Warn("cache read failed, falling back to memory", "error", err)
		}
	}
	if data, ok := c.mem.get(key); ok {
		c.hits.Add(1)
		return data, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *Cache) set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err == nil {
			return
		} else {
			c.logger.Warn("cache write failed, falling back to memory", "error", err)
		}
	}
	c.mem.set(key, payload, ttl)
}

// SnapshotStats reports the current cache state for diagnostics.
func (c *Cache) SnapshotStats(ctx context.Context) Stats {
	stats := Stats{
		MemoryEntries: c.mem.size(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
	}
	if c.rdb != nil {
		stats.RedisConnected = c.rdb.Ping(ctx).Err() == nil
	}
	return stats
}

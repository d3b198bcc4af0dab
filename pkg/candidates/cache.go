package candidates

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// Cache stores query answers, including empty ones
type Cache interface {
	Get(ctx context.Context, key string) ([]models.CandidateRecord, bool, error)
	Set(ctx context.Context, key string, records []models.CandidateRecord, ttl time.Duration) error
}

// MemoryCache is an in-process TTL cache
type MemoryCache struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	maxSize int
	hits    int64
	misses  int64
	now     func() time.Time
}

type memoryEntry struct {
	records   []models.CandidateRecord
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most maxSize entries
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.CandidateRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		c.misses++
		metrics.CacheLookupsTotal.WithLabelValues("memory", "miss").Inc()
		return nil, false, nil
	}
	c.hits++
	metrics.CacheLookupsTotal.WithLabelValues("memory", "hit").Inc()
	return entry.records, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, records []models.CandidateRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictHalf()
	}
	c.entries[key] = memoryEntry{records: records, expiresAt: c.now().Add(ttl)}
	return nil
}

// evictHalf drops expired entries, then arbitrary ones until half the capacity is free
func (c *MemoryCache) evictHalf() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	target := c.maxSize / 2
	for key := range c.entries {
		if len(c.entries) <= target {
			break
		}
		delete(c.entries, key)
	}
}

// CacheStats reports cache usage
type CacheStats struct {
	Size   int
	Hits   int64
	Misses int64
}

func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Size: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// RedisCachePrefix namespaces candidate cache keys
const RedisCachePrefix = "fern:candidates:"

// RedisCache shares query answers between processes
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]models.CandidateRecord, bool, error) {
	raw, err := c.client.Get(ctx, RedisCachePrefix+key)
	if errors.Is(err, redis.ErrNil) {
		metrics.CacheLookupsTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}

	var records []models.CandidateRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false, errors.Wrap(err, "decode cached candidates")
	}
	metrics.CacheLookupsTotal.WithLabelValues("redis", "hit").Inc()
	return records, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, records []models.CandidateRecord, ttl time.Duration) error {
	if records == nil {
		records = []models.CandidateRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(err, "encode candidates")
	}
	return errors.Wrap(c.client.Set(ctx, RedisCachePrefix+key, raw, ttl), "redis set")
}

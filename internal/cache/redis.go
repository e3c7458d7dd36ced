package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/2bv/prime-anonymizer/internal/detect"
)

// FindingCache handles Redis-based caching of detection results keyed by
// request fingerprint, so repeated payloads skip the recognizer pass.
type FindingCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	stats  *cacheStats
}

// cacheStats tracks cache performance metrics
type cacheStats struct {
	hits   int64
	misses int64
}

// NewFindingCache creates a new Redis-based finding cache
func NewFindingCache(config *Config, logger *zap.Logger) (*FindingCache, error) {
	// Parse Redis URL
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	cache := &FindingCache{
		client: client,
		config: config,
		logger: logger,
		stats:  &cacheStats{},
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Finding cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// ping tests the Redis connection
func (fc *FindingCache) ping(ctx context.Context) error {
	_, err := fc.client.Ping(ctx).Result()
	return err
}

// Get looks up cached findings by fingerprint. A failed lookup is treated as
// a miss rather than an error so detection always has a fallback path.
func (fc *FindingCache) Get(ctx context.Context, key string) ([]detect.Finding, bool) {
	cacheKey := fc.cacheKey(key)

	cachedData, err := fc.client.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		fc.stats.misses++
		fc.logger.Debug("Cache miss", zap.String("key", cacheKey))
		return nil, false
	} else if err != nil {
		fc.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var entry cachedEntry
	if err := json.Unmarshal([]byte(cachedData), &entry); err != nil {
		fc.logger.Error("Failed to unmarshal cached findings", zap.Error(err))
		// Delete corrupted cache entry
		fc.client.Del(ctx, cacheKey)
		return nil, false
	}

	fc.stats.hits++
	fc.logger.Debug("Cache hit",
		zap.String("key", cacheKey),
		zap.Int("findings", len(entry.Findings)))

	return entry.Findings, true
}

// Set caches findings under the given fingerprint with the configured TTL
func (fc *FindingCache) Set(ctx context.Context, key string, findings []detect.Finding) {
	cacheKey := fc.cacheKey(key)

	entry := cachedEntry{
		Findings: findings,
		CachedAt: time.Now(),
		TTL:      int64(fc.config.DefaultTTL.Seconds()),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fc.logger.Error("Failed to marshal findings for caching", zap.Error(err))
		return
	}

	if err := fc.client.Set(ctx, cacheKey, data, fc.config.DefaultTTL).Err(); err != nil {
		fc.logger.Error("Failed to cache findings", zap.Error(err))
		return
	}

	fc.logger.Debug("Findings cached successfully",
		zap.String("key", cacheKey),
		zap.Int("findings", len(findings)))
}

// GetStats returns cache performance statistics
func (fc *FindingCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := fc.client.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:   fc.stats.hits,
		Misses: fc.stats.misses,
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	// Parse memory usage from Redis info
	lines := strings.Split(info, "\r\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "used_memory:") {
			if memStr := strings.TrimPrefix(line, "used_memory:"); memStr != "" {
				if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
					stats.MemoryUsage = mem
				}
			}
		}
	}

	keys, err := fc.client.DBSize(ctx).Result()
	if err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes all cached findings
func (fc *FindingCache) Clear(ctx context.Context) error {
	pattern := fc.config.KeyPrefix + "*"

	// Use SCAN to find all keys with our prefix
	iter := fc.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		if err := fc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			fc.logger.Error("Failed to delete cache keys", zap.Error(err))
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	fc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (fc *FindingCache) Close() error {
	if fc.client != nil {
		return fc.client.Close()
	}
	return nil
}

// cacheKey namespaces a request fingerprint under the configured prefix
func (fc *FindingCache) cacheKey(fingerprint string) string {
	return fmt.Sprintf("%s:findings:%s", fc.config.KeyPrefix, fingerprint)
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}

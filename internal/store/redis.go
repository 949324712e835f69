package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pattern-scanner/internal/models"
	"pattern-scanner/pkg/utils"
)

// RedisCache implements CandleCache on a shared Redis instance, one JSON value per fingerprint.
type RedisCache struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration // 0 = no expiry
}

// NewRedisCache wraps rdb. An empty namespace uses "candles".
func NewRedisCache(rdb *redis.Client, namespace string, ttl time.Duration) *RedisCache {
	if namespace == "" {
		namespace = "candles"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{rdb: rdb, namespace: namespace, ttl: ttl}
}

func (c *RedisCache) key(fingerprint string) string {
	return c.namespace + ":" + safe(fingerprint)
}

// Get reads an entry. A corrupt value is deleted and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, fingerprint string) ([]models.Candle, bool, error) {
	key := c.key(fingerprint)
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var candles []models.Candle
	if err := json.Unmarshal(b, &candles); err != nil {
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false, nil
	}
	for i := range candles {
		candles[i].Timestamp = candles[i].Timestamp.In(utils.MarketLocation)
	}
	return candles, len(candles) > 0, nil
}

// Put writes the whole sequence with a single SET.
func (c *RedisCache) Put(ctx context.Context, fingerprint string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	b, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("encoding candles: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(fingerprint), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Stats counts keys under the namespace. Candle counts are not tracked in Redis.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "redis", Location: c.rdb.Options().Addr + "/" + c.namespace}
	keys, err := c.scan(ctx)
	if err != nil {
		return stats, err
	}
	stats.Entries = int64(len(keys))
	return stats, nil
}

// Clear deletes every key under the namespace.
func (c *RedisCache) Clear(ctx context.Context) (int64, error) {
	keys, err := c.scan(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return n, nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// scan collects the namespace's keys with SCAN.
func (c *RedisCache) scan(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		all    []string
	)
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, c.namespace+":*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		all = append(all, keys...)
		cursor = cur
		if cursor == 0 {
			return all, nil
		}
	}
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, ":", "_")
}

// Package store persists fetched candle sequences keyed by request fingerprint.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pattern-scanner/internal/config"
	"pattern-scanner/internal/models"
)

// CandleCache stores one candle sequence per fingerprint.
// Put replaces the whole entry; a reader sees either the old or the new sequence.
type CandleCache interface {
	// Get returns the cached sequence and whether a non-empty entry exists.
	Get(ctx context.Context, fingerprint string) ([]models.Candle, bool, error)
	Put(ctx context.Context, fingerprint string, candles []models.Candle) error
	Stats(ctx context.Context) (Stats, error)
	// Clear removes every entry and returns how many were removed.
	Clear(ctx context.Context) (int64, error)
	Close() error
}

// Stats summarises cache contents.
type Stats struct {
	Backend  string `json:"backend"`
	Location string `json:"location"`
	Entries  int64  `json:"entries"`
	Candles  int64  `json:"candles"`
}

// Open builds the cache selected by cfg. A disabled cache returns nil.
func Open(cfg config.CacheConfig, logger zerolog.Logger) (CandleCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Backend) {
	case config.CacheBackendNone, "":
		return nil, nil
	case config.CacheBackendSQLite:
		cache, err := NewSQLiteCache(cfg.Path)
		if err != nil {
			return nil, err
		}
		return cache, nil
	case config.CacheBackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Debug().Str("addr", cfg.RedisAddr).Msg("Using redis candle cache")
		return NewRedisCache(rdb, cfg.Namespace, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-scanner/internal/config"
	"pattern-scanner/internal/models"
)

func TestRedisCache_GetHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	candles := generateTestCandles(3, 12, 1000)
	b, err := json.Marshal(candles)
	require.NoError(t, err)
	mock.ExpectGet("candles:AAPL_1minute_2024-01-02_2024-01-03_true_false").SetVal(string(b))

	cache := NewRedisCache(rdb, "", 0)
	got, ok, err := cache.Get(context.Background(), "AAPL_1minute_2024-01-02_2024-01-03_true_false")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, got, 3)
	for i := range candles {
		assert.True(t, candlesEqual(candles[i], got[i]), "candle %d", i)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetMissAndCorrupt(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	cache := NewRedisCache(rdb, "ns", 0)

	mock.ExpectGet("ns:missing").RedisNil()
	_, ok, err := cache.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectGet("ns:broken").SetVal("{not json")
	mock.ExpectDel("ns:broken").SetVal(1)
	_, ok, err = cache.Get(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	mock.ExpectGet("candles:x").SetErr(errors.New("connection refused"))
	_, _, err := NewRedisCache(rdb, "", 0).Get(context.Background(), "x")
	assert.Error(t, err)
}

func TestRedisCache_Put(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	candles := generateTestCandles(2, 5, 10)
	b, err := json.Marshal(candles)
	require.NoError(t, err)
	mock.ExpectSet("candles:fp", b, time.Hour).SetVal("OK")

	cache := NewRedisCache(rdb, "candles", time.Hour)
	require.NoError(t, cache.Put(context.Background(), "fp", candles))
	require.NoError(t, cache.Put(context.Background(), "fp", []models.Candle{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_StatsAndClear(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	cache := NewRedisCache(rdb, "candles", 0)

	mock.ExpectScan(0, "candles:*", 200).SetVal([]string{"candles:a", "candles:b"}, 7)
	mock.ExpectScan(7, "candles:*", 200).SetVal([]string{"candles:c"}, 0)
	stats, err := cache.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Entries)
	assert.Equal(t, "redis", stats.Backend)

	mock.ExpectScan(0, "candles:*", 200).SetVal([]string{"candles:a", "candles:b"}, 0)
	mock.ExpectDel("candles:a", "candles:b").SetVal(2)
	n, err := cache.Clear(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_DisabledAndNone(t *testing.T) {
	c, err := Open(config.CacheConfig{Enabled: false, Backend: config.CacheBackendSQLite}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = Open(config.CacheConfig{Enabled: true, Backend: config.CacheBackendNone}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = Open(config.CacheConfig{Enabled: true, Backend: "memcached"}, zerolog.Nop())
	assert.Error(t, err)
}

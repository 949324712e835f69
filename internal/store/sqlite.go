package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
	"pattern-scanner/pkg/utils"
)

// SQLiteCache implements CandleCache on a local SQLite file.
type SQLiteCache struct {
	db   *sql.DB
	path string
}

// NewSQLiteCache opens (creating if needed) the cache database at dbPath.
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Scan workers read and write concurrently
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	cache := &SQLiteCache{db: db, path: dbPath}
	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return cache, nil
}

func (s *SQLiteCache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		fingerprint TEXT PRIMARY KEY,
		rows INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS candles (
		fingerprint TEXT NOT NULL,
		ts INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (fingerprint, ts)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

// Put replaces the entry for fingerprint inside one transaction.
func (s *SQLiteCache) Put(ctx context.Context, fingerprint string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", apperrors.ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM candles WHERE fingerprint = ?`, fingerprint); err != nil {
		return fmt.Errorf("%w: clearing entry: %v", apperrors.ErrDatabaseError, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (fingerprint, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, fingerprint, c.Timestamp.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries (fingerprint, rows, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	`, fingerprint, len(candles)); err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get returns the candles stored under fingerprint, in market time.
func (s *SQLiteCache) Get(ctx context.Context, fingerprint string) ([]models.Candle, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE fingerprint = ?
		ORDER BY ts ASC
	`, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var (
			c  models.Candle
			ts int64
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, false, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Timestamp = time.UnixMilli(ts).In(utils.MarketLocation)
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, len(candles) > 0, nil
}

// Stats counts entries and stored candles.
func (s *SQLiteCache) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "sqlite", Location: s.path}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(rows), 0) FROM cache_entries`).
		Scan(&stats.Entries, &stats.Candles)
	if err != nil {
		return stats, fmt.Errorf("failed to count entries: %w", err)
	}
	return stats, nil
}

// Clear deletes every entry.
func (s *SQLiteCache) Clear(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM candles`); err != nil {
		return 0, fmt.Errorf("failed to clear candles: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

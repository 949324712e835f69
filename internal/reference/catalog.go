// Package reference resolves the symbol universe, exchange names and ticker
// details, keeping a local snapshot of the listings.
package reference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/models"
)

// Source is the upstream reference collaborator.
type Source interface {
	Tickers(ctx context.Context, market, tickerType string) ([]models.Ticker, error)
	Exchanges(ctx context.Context) ([]models.Exchange, error)
	TickerDetails(ctx context.Context, symbol string, date time.Time) (models.TickerDetails, error)
}

// Options configures a Catalog.
type Options struct {
	// MaxAge is how long a stored listing is trusted. Zero always refetches.
	MaxAge time.Duration
	// FetchDetails enables ticker details requests; otherwise details are empty placeholders.
	FetchDetails bool
}

// tickerRecord is the stored form of a listed ticker.
type tickerRecord struct {
	Symbol   string `gorm:"primaryKey"`
	Type     string `gorm:"primaryKey"`
	Exchange string `gorm:"index"`
	Name     string
	Currency string
	Locale   string
}

func (tickerRecord) TableName() string { return "tickers" }

type exchangeRecord struct {
	MIC  string `gorm:"primaryKey"`
	Name string
}

func (exchangeRecord) TableName() string { return "exchanges" }

// snapshotRecord remembers when a listing was last refreshed.
type snapshotRecord struct {
	Kind     string `gorm:"primaryKey"` // "exchanges" or "tickers:<TYPE>"
	Rows     int
	SyncedAt time.Time
}

func (snapshotRecord) TableName() string { return "snapshots" }

// Catalog answers reference queries from the snapshot, refreshing stale listings.
// It is safe for concurrent use.
type Catalog struct {
	db     *gorm.DB
	source Source
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	details map[string]models.TickerDetails
}

// OpenCatalog opens the snapshot database at path.
func OpenCatalog(path string, source Source, opts Options, logger zerolog.Logger) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating reference directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("%w: opening reference db: %v", apperrors.ErrDatabaseError, err)
	}
	return NewCatalog(db, source, opts, logger)
}

// NewCatalog uses an already opened database.
func NewCatalog(db *gorm.DB, source Source, opts Options, logger zerolog.Logger) (*Catalog, error) {
	if err := db.AutoMigrate(&tickerRecord{}, &exchangeRecord{}, &snapshotRecord{}); err != nil {
		return nil, fmt.Errorf("%w: migrating reference db: %v", apperrors.ErrDatabaseError, err)
	}
	return &Catalog{
		db:      db,
		source:  source,
		opts:    opts,
		logger:  logging.WithOperation(logger, "reference"),
		now:     time.Now,
		details: make(map[string]models.TickerDetails),
	}, nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *Catalog) fresh(kind string) bool {
	if c.opts.MaxAge <= 0 {
		return false
	}
	var snap snapshotRecord
	if err := c.db.First(&snap, "kind = ?", kind).Error; err != nil {
		return false
	}
	return c.now().Sub(snap.SyncedAt) < c.opts.MaxAge
}

func (c *Catalog) markSynced(tx *gorm.DB, kind string, rows int) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&snapshotRecord{Kind: kind, Rows: rows, SyncedAt: c.now()}).Error
}

// Universe returns the tickers of the given types, in listing order per type.
func (c *Catalog) Universe(ctx context.Context, types []string) ([]models.Ticker, error) {
	var all []models.Ticker
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		tickers, err := c.tickersOfType(ctx, t, false)
		if err != nil {
			return nil, err
		}
		all = append(all, tickers...)
	}
	return all, nil
}

func (c *Catalog) tickersOfType(ctx context.Context, tickerType string, force bool) ([]models.Ticker, error) {
	kind := "tickers:" + tickerType
	if !force && c.fresh(kind) {
		var rows []tickerRecord
		if err := c.db.WithContext(ctx).Where("type = ?", tickerType).Order("rowid").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("%w: reading tickers: %v", apperrors.ErrDatabaseError, err)
		}
		tickers := make([]models.Ticker, len(rows))
		for i, r := range rows {
			tickers[i] = models.Ticker{Symbol: r.Symbol, Type: r.Type, Exchange: r.Exchange, Name: r.Name, Currency: r.Currency, Locale: r.Locale}
		}
		return tickers, nil
	}

	tickers, err := c.source.Tickers(ctx, "stocks", tickerType)
	if err != nil {
		return nil, fmt.Errorf("listing %s tickers: %w", tickerType, err)
	}

	rows := make([]tickerRecord, len(tickers))
	for i, t := range tickers {
		rows[i] = tickerRecord{Symbol: t.Symbol, Type: tickerType, Exchange: t.Exchange, Name: t.Name, Currency: t.Currency, Locale: t.Locale}
	}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("type = ?", tickerType).Delete(&tickerRecord{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}
		return c.markSynced(tx, kind, len(rows))
	})
	if err != nil {
		// The listing is still usable for this run
		c.logger.Warn().Err(err).Str("type", tickerType).Msg("Failed to store ticker snapshot")
	}
	return tickers, nil
}

// Exchanges returns the stock exchange list.
func (c *Catalog) Exchanges(ctx context.Context) ([]models.Exchange, error) {
	return c.exchanges(ctx, false)
}

func (c *Catalog) exchanges(ctx context.Context, force bool) ([]models.Exchange, error) {
	if !force && c.fresh("exchanges") {
		var rows []exchangeRecord
		if err := c.db.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("%w: reading exchanges: %v", apperrors.ErrDatabaseError, err)
		}
		out := make([]models.Exchange, len(rows))
		for i, r := range rows {
			out[i] = models.Exchange{Name: r.Name, MIC: r.MIC}
		}
		return out, nil
	}

	exchanges, err := c.source.Exchanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing exchanges: %w", err)
	}
	rows := make([]exchangeRecord, len(exchanges))
	for i, e := range exchanges {
		rows[i] = exchangeRecord{MIC: e.MIC, Name: e.Name}
	}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&exchangeRecord{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return err
			}
		}
		return c.markSynced(tx, "exchanges", len(rows))
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to store exchange snapshot")
	}
	return exchanges, nil
}

// TickerTable returns the universe joined with exchange names.
func (c *Catalog) TickerTable(ctx context.Context, types []string) ([]models.TickerRow, error) {
	tickers, err := c.Universe(ctx, types)
	if err != nil {
		return nil, err
	}
	exchanges, err := c.Exchanges(ctx)
	if err != nil {
		return nil, err
	}
	return JoinTickers(tickers, exchanges), nil
}

// SyncResult reports a forced refresh.
type SyncResult struct {
	Tickers   map[string]int `json:"tickers"`
	Exchanges int            `json:"exchanges"`
}

// Sync refreshes the listings of the given types and the exchange list.
func (c *Catalog) Sync(ctx context.Context, types []string) (SyncResult, error) {
	result := SyncResult{Tickers: make(map[string]int)}
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		tickers, err := c.tickersOfType(ctx, t, true)
		if err != nil {
			return result, err
		}
		result.Tickers[t] = len(tickers)
	}
	exchanges, err := c.exchanges(ctx, true)
	if err != nil {
		return result, err
	}
	result.Exchanges = len(exchanges)
	return result, nil
}

// Details returns descriptive attributes of symbol as of date, memoized per run.
// When details are disabled or the symbol is unknown upstream, empty placeholders are returned.
func (c *Catalog) Details(ctx context.Context, symbol string, date time.Time) (models.TickerDetails, error) {
	if !c.opts.FetchDetails {
		return models.TickerDetails{}, nil
	}

	key := symbol + "|" + date.Format("2006-01-02")
	c.mu.Lock()
	if d, ok := c.details[key]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	d, err := c.source.TickerDetails(ctx, symbol, date)
	if errors.Is(err, apperrors.ErrDataNotFound) {
		d, err = models.TickerDetails{}, nil
	}
	if err != nil {
		return models.TickerDetails{}, fmt.Errorf("ticker details for %s: %w", symbol, err)
	}

	c.mu.Lock()
	c.details[key] = d
	c.mu.Unlock()
	return d, nil
}

// JoinTickers inner-joins tickers with exchanges on MIC, adding the exchange name.
// Tickers whose exchange is not listed are dropped.
func JoinTickers(tickers []models.Ticker, exchanges []models.Exchange) []models.TickerRow {
	names := make(map[string]string, len(exchanges))
	for _, e := range exchanges {
		if _, ok := names[e.MIC]; !ok {
			names[e.MIC] = e.Name
		}
	}

	rows := make([]models.TickerRow, 0, len(tickers))
	for _, t := range tickers {
		name, ok := names[t.Exchange]
		if !ok {
			continue
		}
		rows = append(rows, models.TickerRow{Ticker: t, ExchangeName: name})
	}
	return rows
}

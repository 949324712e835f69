package cli

import (
	"errors"

	"github.com/rs/zerolog"

	"pattern-scanner/internal/candles"
	"pattern-scanner/internal/config"
	"pattern-scanner/internal/marketdata"
	"pattern-scanner/internal/reference"
	"pattern-scanner/internal/store"
)

// services bundles the collaborators a scan needs.
type services struct {
	client  *marketdata.Client
	cache   store.CandleCache
	candles *candles.Store
	catalog *reference.Catalog
}

// openServices builds the market data client, candle cache and store, and the
// reference catalog from cfg.
func openServices(cfg *config.Config, logger zerolog.Logger) (*services, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	client := marketdata.NewClient(marketdata.Options{
		BaseURL:           cfg.Polygon.BaseURL,
		APIKey:            cfg.Credentials.Polygon.APIKey,
		Timeout:           cfg.Polygon.Timeout,
		RequestsPerMinute: cfg.Polygon.RequestsPerMinute,
		PageLimit:         cfg.Polygon.PageLimit,
		BreakerThreshold:  cfg.Polygon.BreakerThreshold,
		BreakerCooldown:   cfg.Polygon.BreakerCooldown,
	}, logger)

	cache, err := store.Open(cfg.Cache, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Candle cache unavailable, continuing without it")
		cache = nil
	}

	catalog, err := reference.OpenCatalog(cfg.Reference.DBPath, client, reference.Options{
		MaxAge:       cfg.Reference.MaxAge,
		FetchDetails: cfg.Reference.FetchDetails,
	}, logger)
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, err
	}

	return &services{
		client:  client,
		cache:   cache,
		candles: candles.NewStore(client, cache, cfg.Retry.RetryConfig(), logger),
		catalog: catalog,
	}, nil
}

// Close releases the cache and the reference database.
func (s *services) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	errs = append(errs, s.catalog.Close())
	return errors.Join(errs...)
}

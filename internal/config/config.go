// Package config provides configuration management for the pattern scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/pkg/utils"
)

// Cache backends.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// Config holds all application configuration.
type Config struct {
	Polygon     PolygonConfig   `mapstructure:"polygon"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Retry       RetrySettings   `mapstructure:"retry"`
	Scan        ScanConfig      `mapstructure:"scan"`
	Reference   ReferenceConfig `mapstructure:"reference"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Credentials Credentials     `mapstructure:"-"` // Loaded separately

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// PolygonConfig holds market data API settings.
type PolygonConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"` // 0 = unpaced
	PageLimit         int           `mapstructure:"page_limit"`
	// BreakerThreshold is the number of consecutive upstream failures that opens the circuit.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// CacheConfig holds candle cache settings.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Backend   string        `mapstructure:"backend"` // sqlite, redis, none
	Path      string        `mapstructure:"path"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"` // 0 = keep forever
	Namespace string        `mapstructure:"namespace"`
}

// RetrySettings holds the rate-limit retry policy.
type RetrySettings struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	MaxWait       time.Duration `mapstructure:"max_wait"`
	AlignToMinute bool          `mapstructure:"align_to_minute"`
}

// ScanConfig holds scan execution settings.
type ScanConfig struct {
	Workers    int    `mapstructure:"workers"` // 0 = one per CPU
	RecordsDir string `mapstructure:"records_dir"`
	Format     string `mapstructure:"format"` // csv, json
}

// ReferenceConfig holds reference data settings.
type ReferenceConfig struct {
	DBPath       string        `mapstructure:"db_path"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	FetchDetails bool          `mapstructure:"fetch_details"`
	SplitsFile   string        `mapstructure:"splits_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Credentials holds API credentials.
type Credentials struct {
	Polygon PolygonCredentials `mapstructure:"polygon"`
}

// PolygonCredentials holds the market data API key.
type PolygonCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// RetryConfig converts the settings into a retry policy.
func (r RetrySettings) RetryConfig() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:   r.MaxAttempts,
		InitialDelay:  r.InitialDelay,
		MaxDelay:      r.MaxDelay,
		BackoffFactor: r.BackoffFactor,
		MaxWait:       r.MaxWait,
		AlignToMinute: r.AlignToMinute,
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/pattern-scanner"
	}
	return filepath.Join(home, ".config", "pattern-scanner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, apperrors.Wrap(err, "loading config.toml")
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, apperrors.Wrap(err, "loading credentials.toml")
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "validating config")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("polygon.base_url", "https://api.polygon.io")
	v.SetDefault("polygon.timeout", "30s")
	v.SetDefault("polygon.requests_per_minute", 0)
	v.SetDefault("polygon.page_limit", 1000)
	v.SetDefault("polygon.breaker_threshold", 5)
	v.SetDefault("polygon.breaker_cooldown", "30s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", CacheBackendSQLite)
	v.SetDefault("cache.path", filepath.Join(configDir, "cache.db"))
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "0s")
	v.SetDefault("cache.namespace", "candles")

	retry := utils.RateLimitRetryConfig()
	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_delay", retry.InitialDelay)
	v.SetDefault("retry.max_delay", retry.MaxDelay)
	v.SetDefault("retry.backoff_factor", retry.BackoffFactor)
	v.SetDefault("retry.max_wait", retry.MaxWait)
	v.SetDefault("retry.align_to_minute", retry.AlignToMinute)

	v.SetDefault("scan.workers", 0)
	v.SetDefault("scan.records_dir", filepath.Join(configDir, "records"))
	v.SetDefault("scan.format", "csv")

	v.SetDefault("reference.db_path", filepath.Join(configDir, "reference.db"))
	v.SetDefault("reference.max_age", "24h")
	v.SetDefault("reference.fetch_details", false)
	v.SetDefault("reference.splits_file", "rs_list.csv")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "scanner.log"))
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// First run: leave a template behind and continue on defaults
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	// A .env next to the working directory or the config dir may carry the API key
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Credentials.Polygon.APIKey = v
	}
	if v := os.Getenv("POLYGON_BASE_URL"); v != "" {
		cfg.Polygon.BaseURL = v
	}
	if v := os.Getenv("SCANNER_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SCANNER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendSQLite, CacheBackendRedis, CacheBackendNone:
	default:
		return apperrors.NewValidationError("cache.backend", c.Cache.Backend, "must be sqlite, redis or none")
	}
	if c.Cache.TTL < 0 {
		return apperrors.NewValidationError("cache.ttl", c.Cache.TTL, "must be non-negative")
	}
	if c.Polygon.RequestsPerMinute < 0 {
		return apperrors.NewValidationError("polygon.requests_per_minute", c.Polygon.RequestsPerMinute, "must be non-negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return apperrors.NewValidationError("retry.max_attempts", c.Retry.MaxAttempts, "must be at least 1")
	}
	if c.Retry.BackoffFactor < 1 {
		return apperrors.NewValidationError("retry.backoff_factor", c.Retry.BackoffFactor, "must be at least 1")
	}
	if c.Retry.MaxWait < 0 {
		return apperrors.NewValidationError("retry.max_wait", c.Retry.MaxWait, "must be non-negative")
	}
	if c.Scan.Workers < 0 {
		return apperrors.NewValidationError("scan.workers", c.Scan.Workers, "must be non-negative")
	}
	switch c.Scan.Format {
	case "csv", "json":
	default:
		return apperrors.NewValidationError("scan.format", c.Scan.Format, "must be csv or json")
	}
	return nil
}

// RequireAPIKey fails when no market data API key has been configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Credentials.Polygon.APIKey) == "" {
		return fmt.Errorf("%w: set POLYGON_API_KEY or fill %s", apperrors.ErrMissingAPIKey,
			filepath.Join(c.Dir, "credentials.toml"))
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Pattern Scanner Configuration

[polygon]
base_url = "https://api.polygon.io"
# HTTP timeout per request
timeout = "30s"
# Pace upstream requests (0 disables pacing; free plans allow 5)
requests_per_minute = 0
# Page size for reference listings
page_limit = 1000
# Consecutive upstream failures before requests fail fast
breaker_threshold = 5
breaker_cooldown = "30s"

[cache]
enabled = true
# sqlite, redis or none
backend = "sqlite"
# path = "~/.config/pattern-scanner/cache.db"
redis_addr = "localhost:6379"
redis_db = 0
# Expiry for redis entries, "0s" keeps them forever
ttl = "0s"
namespace = "candles"

[retry]
# Rate limit retry policy
max_attempts = 10
initial_delay = "1s"
max_delay = "60s"
backoff_factor = 2.0
# Give up once this much time was spent waiting
max_wait = "5m"
# Wait for the next wall-clock minute when the quota is hit
align_to_minute = true

[scan]
# Parallel workers, 0 uses one per CPU
workers = 0
# csv or json
format = "csv"

[reference]
# Refresh the ticker snapshot when older than this
max_age = "24h"
# Query ticker details for enrichment (one request per event day)
fetch_details = false
# Reverse split table used by the reverse_split family
splits_file = "rs_list.csv"

[logging]
# debug, info, warn, error
level = "info"
file = true
max_size = 50
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# Pattern Scanner Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[polygon]
api_key = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/pkg/utils"
)

func TestLoad_WritesTemplatesOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("POLYGON_API_KEY", "")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))

	assert.Equal(t, "https://api.polygon.io", cfg.Polygon.BaseURL)
	assert.Equal(t, CacheBackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, 10, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Retry.MaxWait)
	assert.Equal(t, filepath.Join(dir, "cache.db"), cfg.Cache.Path)
	assert.Equal(t, dir, cfg.Dir)

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoad_ReadsFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[cache]
backend = "none"

[scan]
workers = 3
format = "json"
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(`
[polygon]
api_key = "from-file"
`), 0600))

	t.Setenv("POLYGON_API_KEY", "from-env")
	t.Setenv("SCANNER_CACHE_BACKEND", "REDIS")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Credentials.Polygon.APIKey)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 3, cfg.Scan.Workers)
	assert.Equal(t, "json", cfg.Scan.Format)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("POLYGON_API_KEY", "")
	cfg, err := Load(dir)
	require.NoError(t, err)

	cfg.Cache.Backend = "memcached"
	err = cfg.Validate()
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	cfg.Cache.Backend = CacheBackendNone
	cfg.Retry.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestRequireAPIKey_Missing(t *testing.T) {
	cfg := &Config{Dir: t.TempDir()}
	assert.ErrorIs(t, cfg.RequireAPIKey(), apperrors.ErrMissingAPIKey)
}

func TestLoad_RetryDefaultsFollowRateLimitPolicy(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("POLYGON_API_KEY", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[polygon]\n"), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, utils.RateLimitRetryConfig(), cfg.Retry.RetryConfig())
}

func TestRetrySettings_RetryConfig(t *testing.T) {
	rc := RetrySettings{MaxAttempts: 4, InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2, MaxWait: time.Hour, AlignToMinute: true}.RetryConfig()
	assert.Equal(t, 4, rc.MaxAttempts)
	assert.True(t, rc.AlignToMinute)
	assert.Equal(t, time.Hour, rc.MaxWait)
}

const sampleParams = `
family: breakouts
output_file: june_breakouts
start_date: 2024-06-03
end_date: 06/28/2024
adjusted: yes
outside_normal_session: no
ticker_types: cs, adrc
minimum_price: 1
maximum_price: 20
minimum_average_volume: 100000
minimum_average_turnover: 0
daily_breakout_period: 20
weekly_breakout_period: 10
monthly_breakout_period: 6
minimum_traded_volume: 50000
`

func TestParseRunParams(t *testing.T) {
	p, err := ParseRunParams([]byte(sampleParams))
	require.NoError(t, err)

	assert.Equal(t, "breakouts", p.Family)
	assert.Equal(t, "june_breakouts", p.OutputFile)
	assert.Equal(t, "2024-06-03", p.StartDate.String())
	assert.Equal(t, "2024-06-28", p.EndDate.String())
	assert.True(t, bool(p.Adjusted))
	assert.False(t, p.ExtendedSession())
	assert.Equal(t, StringList{"CS", "ADRC"}, p.TickerTypes)
	assert.Equal(t, 20, p.DailyBreakoutPeriod)

	require.NotEmpty(t, p.Audit)
	assert.Equal(t, ParamRow{Parameter: "family", Value: "breakouts"}, p.Audit[0])
	assert.Equal(t, ParamRow{Parameter: "ticker_types", Value: "cs, adrc"}, p.Audit[6])
}

func TestParseRunParams_Defaults(t *testing.T) {
	p, err := ParseRunParams([]byte(`
family: dip_buy_days
start_date: 2024-01-02
end_date: 2024-02-02
ticker_types: [CS]
maximum_price: 5
`))
	require.NoError(t, err)
	assert.Equal(t, "dip_buy_days", p.OutputFile)
	assert.True(t, p.ExtendedSession())
	assert.Equal(t, StringList{"CS"}, p.TickerTypes)
	assert.Equal(t, "CS", p.Audit[3].Value)
}

func TestParseRunParams_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing start", "end_date: 2024-01-02\nticker_types: CS\n"},
		{"end before start", "start_date: 2024-02-02\nend_date: 2024-01-02\nticker_types: CS\n"},
		{"no ticker types", "start_date: 2024-01-02\nend_date: 2024-02-02\n"},
		{"bad yes/no", "start_date: 2024-01-02\nend_date: 2024-02-02\nticker_types: CS\nadjusted: maybe\n"},
		{"bad date", "start_date: someday\nend_date: 2024-02-02\nticker_types: CS\n"},
		{"price band", "start_date: 2024-01-02\nend_date: 2024-02-02\nticker_types: CS\nminimum_price: 5\nmaximum_price: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRunParams([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadRunParams_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleParams), 0644))

	p, err := LoadRunParams(path)
	require.NoError(t, err)
	assert.Equal(t, 6, p.MonthlyBreakoutPeriod)

	_, err = LoadRunParams(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseDate_Layouts(t *testing.T) {
	want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-01-05",
		"2024-1-5",
		"2024/01/05",
		"01/05/2024",
		"1/5/2024",
		" 1/5/2024 ",
		"2024-01-05 16:00:00",
		"Jan 5, 2024",
		"5 Jan 2024",
	} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%q parsed as %s", in, got)
	}

	_, err := ParseDate("5.1.2024")
	assert.Error(t, err)
}

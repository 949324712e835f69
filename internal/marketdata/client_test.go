package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
	"pattern-scanner/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, APIKey: "test-key", BreakerThreshold: 2, BreakerCooldown: time.Minute}, zerolog.Nop())
	return c, srv
}

func TestAggregates_FollowsNextURL(t *testing.T) {
	var srvURL string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		if r.URL.Query().Get("cursor") == "" {
			assert.Equal(t, "/v2/aggs/ticker/AAPL/range/1/day/2024-01-02/2024-01-05", r.URL.Path)
			assert.Equal(t, "true", r.URL.Query().Get("adjusted"))
			assert.Equal(t, "asc", r.URL.Query().Get("sort"))
			fmt.Fprintf(w, `{"results":[{"t":1704171600000,"o":1,"h":2,"l":0.5,"c":1.5,"v":100}],
				"next_url":"%s/v2/aggs/ticker/AAPL/range/1/day/2024-01-02/2024-01-05?cursor=p2"}`, srvURL)
			return
		}
		fmt.Fprint(w, `{"results":[{"t":1704258000000,"o":1.5,"h":3,"l":1.4,"c":2.8,"v":250}]}`)
	})
	srvURL = srv.URL

	got, err := c.Aggregates(context.Background(), AggregatesRequest{
		Symbol:     "AAPL",
		Multiplier: 1,
		Timespan:   models.TimeframeDay,
		From:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Adjusted:   true,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.UnixMilli(1704171600000).UTC(), got[0].Timestamp)
	assert.Equal(t, 2.8, got[1].Close)
	assert.Equal(t, 250.0, got[1].Volume)
}

func TestAggregates_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, apperrors.ErrRateLimited},
		{http.StatusNotFound, apperrors.ErrDataNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"status":"ERROR","error":"nope"}`)
			})
			_, err := c.Aggregates(context.Background(), AggregatesRequest{Symbol: "X", Timespan: models.TimeframeMinute})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAggregates_ServerErrorIsUpstreamError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message":"upstream down"}`)
	})
	_, err := c.Aggregates(context.Background(), AggregatesRequest{Symbol: "X", Timespan: models.TimeframeDay})

	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
	assert.Equal(t, "upstream down", upstream.Message)
	assert.NotContains(t, upstream.Endpoint, "test-key")
}

func TestClient_BreakerOpensOnOutageButNotOnQuota(t *testing.T) {
	var calls int32
	status := http.StatusTooManyRequests
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
	})
	req := AggregatesRequest{Symbol: "X", Timespan: models.TimeframeDay}

	for i := 0; i < 3; i++ {
		_, _ = c.Aggregates(context.Background(), req)
	}
	assert.Equal(t, resilience.CircuitClosed, c.Breaker().State())

	status = http.StatusInternalServerError
	for i := 0; i < 2; i++ {
		_, _ = c.Aggregates(context.Background(), req)
	}
	assert.Equal(t, resilience.CircuitOpen, c.Breaker().State())

	before := atomic.LoadInt32(&calls)
	_, err := c.Aggregates(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, before, atomic.LoadInt32(&calls))
}

func TestTickers_PagesByCursor(t *testing.T) {
	var srvURL string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/reference/tickers", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		if r.URL.Query().Get("cursor") == "" {
			assert.Equal(t, "CS", r.URL.Query().Get("type"))
			fmt.Fprintf(w, `{"count":1,"results":[{"ticker":"AAA","name":"Triple A","type":"CS","primary_exchange":"XNAS","currency_name":"usd","locale":"us"}],
				"next_url":"%s/v3/reference/tickers?cursor=abc"}`, srvURL)
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		assert.Empty(t, r.URL.Query().Get("type"))
		fmt.Fprint(w, `{"count":1,"results":[{"ticker":"BBB","name":"Bees","type":"CS","primary_exchange":"XNYS","currency_name":"usd","locale":"us"}]}`)
	})
	srvURL = srv.URL

	got, err := c.Tickers(context.Background(), "stocks", "cs")
	require.NoError(t, err)
	assert.Equal(t, []models.Ticker{
		{Symbol: "AAA", Type: "CS", Exchange: "XNAS", Name: "Triple A", Currency: "usd", Locale: "us"},
		{Symbol: "BBB", Type: "CS", Exchange: "XNYS", Name: "Bees", Currency: "usd", Locale: "us"},
	}, got)
}

func TestExchanges_SkipsMissingMIC(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "stocks", r.URL.Query().Get("asset_class"))
		fmt.Fprint(w, `{"results":[{"name":"Nasdaq","mic":"XNAS"},{"name":"FINRA"},{"name":"NYSE","mic":"XNYS"}]}`)
	})
	got, err := c.Exchanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Exchange{{Name: "Nasdaq", MIC: "XNAS"}, {Name: "NYSE", MIC: "XNYS"}}, got)
}

func TestTickerDetails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/reference/tickers/AAPL", r.URL.Path)
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("date"))
		fmt.Fprint(w, `{"results":{"market_cap":2.5e12,"weighted_shares_outstanding":1.5e10,"sic_code":"3571","sic_description":"ELECTRONIC COMPUTERS"}}`)
	})
	got, err := c.TickerDetails(context.Background(), "AAPL", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got.MarketCap)
	assert.Equal(t, 2.5e12, *got.MarketCap)
	assert.Nil(t, got.ShareClassSharesOutstanding)
	assert.Equal(t, "ELECTRONIC COMPUTERS", got.Industry)
	assert.Equal(t, "Manufacturing", got.Sector)
}

func TestSICSector(t *testing.T) {
	tests := map[string]string{
		"0100": "Agriculture, Forestry and Fishing",
		"1311": "Mining",
		"2834": "Manufacturing",
		"4813": "Transportation and Public Utilities",
		"5961": "Retail Trade",
		"6022": "Finance, Insurance and Real Estate",
		"7372": "Services",
		"9721": "Public Administration",
		"1800": "",
		"":     "",
		"x1":   "",
	}
	for code, want := range tests {
		assert.Equal(t, want, sicSector(code), code)
	}
}

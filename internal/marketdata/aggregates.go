package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"pattern-scanner/internal/models"
)

// AggregatesRequest selects a range of aggregate bars.
type AggregatesRequest struct {
	Symbol     string
	Multiplier int
	Timespan   models.Timeframe // minute, hour or day
	From       time.Time
	To         time.Time
	Adjusted   bool
}

type aggregateBar struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type aggregatesResponse struct {
	Status       string         `json:"status"`
	ResultsCount int            `json:"resultsCount"`
	Results      []aggregateBar `json:"results"`
	NextURL      string         `json:"next_url"`
}

// Aggregates returns the bars for the request in ascending time order, following
// next_url pages until the range is exhausted. Timestamps are in UTC.
// A 404 surfaces as an error wrapping ErrDataNotFound.
func (c *Client) Aggregates(ctx context.Context, req AggregatesRequest) ([]models.Candle, error) {
	mult := req.Multiplier
	if mult <= 0 {
		mult = 1
	}
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		url.PathEscape(req.Symbol), mult, req.Timespan,
		req.From.Format("2006-01-02"), req.To.Format("2006-01-02"))

	query := url.Values{}
	query.Set("adjusted", boolParam(req.Adjusted))
	query.Set("sort", "asc")
	query.Set("limit", strconv.Itoa(maxAggregateRows))

	var candles []models.Candle
	next := c.endpoint(path, query)
	for next != "" {
		var page aggregatesResponse
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, bar := range page.Results {
			candles = append(candles, models.Candle{
				Timestamp: time.UnixMilli(bar.T).UTC(),
				Open:      bar.O,
				High:      bar.H,
				Low:       bar.L,
				Close:     bar.C,
				Volume:    bar.V,
			})
		}
		next = page.NextURL
	}
	return candles, nil
}

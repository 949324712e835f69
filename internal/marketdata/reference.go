package marketdata

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pattern-scanner/internal/models"
)

type tickersResponse struct {
	Results []struct {
		Ticker          string `json:"ticker"`
		Name            string `json:"name"`
		Type            string `json:"type"`
		PrimaryExchange string `json:"primary_exchange"`
		CurrencyName    string `json:"currency_name"`
		Locale          string `json:"locale"`
	} `json:"results"`
	Count   int    `json:"count"`
	NextURL string `json:"next_url"`
}

// Tickers lists the active symbols of one ticker type, following cursor pages.
func (c *Client) Tickers(ctx context.Context, market, tickerType string) ([]models.Ticker, error) {
	if market == "" {
		market = "stocks"
	}
	query := url.Values{}
	query.Set("market", market)
	query.Set("type", strings.ToUpper(tickerType))
	query.Set("active", "true")
	query.Set("limit", strconv.Itoa(c.pageLimit))

	var tickers []models.Ticker
	next := c.endpoint("/v3/reference/tickers", query)
	for next != "" {
		var page tickersResponse
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			tickers = append(tickers, models.Ticker{
				Symbol:   r.Ticker,
				Type:     r.Type,
				Exchange: r.PrimaryExchange,
				Name:     r.Name,
				Currency: r.CurrencyName,
				Locale:   r.Locale,
			})
		}
		next = page.NextURL
	}

	c.logger.Debug().Str("type", tickerType).Int("count", len(tickers)).Msg("Listed tickers")
	return tickers, nil
}

type exchangesResponse struct {
	Results []struct {
		Name string `json:"name"`
		MIC  string `json:"mic"`
	} `json:"results"`
}

// Exchanges lists stock exchanges. Entries without a MIC are skipped.
func (c *Client) Exchanges(ctx context.Context) ([]models.Exchange, error) {
	query := url.Values{}
	query.Set("asset_class", "stocks")

	var resp exchangesResponse
	if err := c.getJSON(ctx, c.endpoint("/v3/reference/exchanges", query), &resp); err != nil {
		return nil, err
	}

	exchanges := make([]models.Exchange, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.MIC == "" {
			continue
		}
		exchanges = append(exchanges, models.Exchange{Name: r.Name, MIC: r.MIC})
	}
	return exchanges, nil
}

type tickerDetailsResponse struct {
	Results struct {
		MarketCap                   *float64 `json:"market_cap"`
		ShareClassSharesOutstanding *float64 `json:"share_class_shares_outstanding"`
		WeightedSharesOutstanding   *float64 `json:"weighted_shares_outstanding"`
		SICCode                     string   `json:"sic_code"`
		SICDescription              string   `json:"sic_description"`
	} `json:"results"`
}

// sicDivisions maps the first two digits of a SIC code, by upper bound, to its division.
var sicDivisions = []struct {
	upTo int
	name string
}{
	{9, "Agriculture, Forestry and Fishing"},
	{14, "Mining"},
	{17, "Construction"},
	{19, ""},
	{39, "Manufacturing"},
	{49, "Transportation and Public Utilities"},
	{51, "Wholesale Trade"},
	{59, "Retail Trade"},
	{67, "Finance, Insurance and Real Estate"},
	{89, "Services"},
	{90, ""},
	{99, "Public Administration"},
}

// sicSector returns the SIC division of code, or "" when code is not a SIC code.
func sicSector(code string) string {
	code = strings.TrimSpace(code)
	if len(code) < 2 {
		return ""
	}
	group, err := strconv.Atoi(code[:2])
	if err != nil {
		return ""
	}
	for _, d := range sicDivisions {
		if group <= d.upTo {
			return d.name
		}
	}
	return ""
}

// TickerDetails returns descriptive attributes of symbol as of date.
// The endpoint has no sector, so it is derived from the SIC division; the SIC
// description fills the industry.
func (c *Client) TickerDetails(ctx context.Context, symbol string, date time.Time) (models.TickerDetails, error) {
	query := url.Values{}
	query.Set("date", date.Format("2006-01-02"))

	var resp tickerDetailsResponse
	if err := c.getJSON(ctx, c.endpoint("/v3/reference/tickers/"+url.PathEscape(symbol), query), &resp); err != nil {
		return models.TickerDetails{}, err
	}

	return models.TickerDetails{
		MarketCap:                   resp.Results.MarketCap,
		ShareClassSharesOutstanding: resp.Results.ShareClassSharesOutstanding,
		WeightedSharesOutstanding:   resp.Results.WeightedSharesOutstanding,
		Sector:                      sicSector(resp.Results.SICCode),
		Industry:                    resp.Results.SICDescription,
	}, nil
}

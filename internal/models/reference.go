package models

import (
	"time"
)

// Ticker is one entry of the tradable symbol universe.
type Ticker struct {
	Symbol   string `json:"symbol"`
	Type     string `json:"type"`
	Exchange string `json:"exchange"` // primary exchange MIC
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Locale   string `json:"locale"`
}

// Exchange is an exchange listing entry keyed by market identifier code.
type Exchange struct {
	Name string `json:"name"`
	MIC  string `json:"mic"`
}

// TickerRow is a ticker joined with the name of its primary exchange.
type TickerRow struct {
	Ticker
	ExchangeName string `json:"exchange_name"`
}

// TickerDetails holds descriptive attributes used to enrich events.
// Nil pointers and empty strings mean the attribute was unavailable.
type TickerDetails struct {
	MarketCap                   *float64 `json:"market_cap"`
	ShareClassSharesOutstanding *float64 `json:"share_class_shares_outstanding"`
	WeightedSharesOutstanding   *float64 `json:"weighted_shares_outstanding"`
	Sector                      string   `json:"sector"`
	Industry                    string   `json:"industry"`
}

// ReverseSplit is one row of the external reverse split table.
type ReverseSplit struct {
	Symbol string
	Date   time.Time
	Ratio  string
}

// Package report aggregates per-symbol scan results and exports them.
package report

import (
	"strconv"
	"time"

	"pattern-scanner/internal/models"
	"pattern-scanner/internal/scanner"
	"pattern-scanner/pkg/utils"
)

// Row is one event joined with its ticker reference data.
type Row struct {
	Event  models.Event
	Ticker models.TickerRow
}

// Table is the aggregated result of a run, in symbol then detection order.
type Table struct {
	Rows []Row
}

// Empty reports whether the run produced nothing to export.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ScanCount is the number of rows carrying one scan name.
type ScanCount struct {
	Scan  string
	Count int
}

// Counts tallies rows per scan name in order of first appearance.
func (t *Table) Counts() []ScanCount {
	var out []ScanCount
	pos := make(map[string]int)
	for _, r := range t.Rows {
		i, ok := pos[r.Event.Scan]
		if !ok {
			i = len(out)
			pos[r.Event.Scan] = i
			out = append(out, ScanCount{Scan: r.Event.Scan})
		}
		out[i].Count++
	}
	return out
}

// Aggregate concatenates the events of every result and inner-joins them with
// tickers on symbol. When tickers lists a symbol more than once the first row
// is used. Events of symbols missing from tickers are dropped.
func Aggregate(results []scanner.SymbolResult, tickers []models.TickerRow) *Table {
	bySymbol := make(map[string]models.TickerRow, len(tickers))
	for _, t := range tickers {
		if _, seen := bySymbol[t.Symbol]; !seen {
			bySymbol[t.Symbol] = t
		}
	}

	table := &Table{}
	for _, res := range results {
		if len(res.Events) == 0 {
			continue
		}
		ticker, ok := bySymbol[res.Symbol]
		if !ok {
			continue
		}
		for _, ev := range res.Events {
			if ev.Symbol == "" {
				ev.Symbol = res.Symbol
			}
			table.Rows = append(table.Rows, Row{Event: ev, Ticker: ticker})
		}
	}
	return table
}

var (
	leadingColumns = []string{"symbol", "scan_name", "time", "price", "side"}
	detailColumns  = []string{"market_cap", "share_class_shares_outstanding", "weighted_shares_outstanding", "sector", "industry"}
	tickerColumns  = []string{"name", "type", "exchange", "exchange_name", "currency", "locale"}
)

// Columns returns the header of the results table: the fixed event columns,
// then every metric name in order of first appearance, then ticker details and
// reference columns.
func (t *Table) Columns() []string {
	cols := append([]string(nil), leadingColumns...)
	seen := make(map[string]bool)
	for _, c := range leadingColumns {
		seen[c] = true
	}
	for _, r := range t.Rows {
		for _, name := range r.Event.Metrics.Names() {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	cols = append(cols, detailColumns...)
	return append(cols, tickerColumns...)
}

// Records renders the rows as strings aligned with Columns. Metrics a row does
// not carry are left empty.
func (t *Table) Records() [][]string {
	cols := t.Columns()
	metricCols := cols[len(leadingColumns) : len(cols)-len(detailColumns)-len(tickerColumns)]

	out := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		ev := r.Event
		rec := make([]string, 0, len(cols))
		rec = append(rec, ev.Symbol, ev.Scan, formatValue(ev.Time), formatValue(ev.Price), string(ev.Side))
		for _, name := range metricCols {
			v, _ := ev.Metrics.Get(name)
			rec = append(rec, formatValue(v))
		}
		d := ev.Details
		rec = append(rec,
			formatValue(d.MarketCap),
			formatValue(d.ShareClassSharesOutstanding),
			formatValue(d.WeightedSharesOutstanding),
			d.Sector, d.Industry,
		)
		tk := r.Ticker
		rec = append(rec, tk.Name, tk.Type, tk.Exchange, tk.ExchangeName, tk.Currency, tk.Locale)
		out = append(out, rec)
	}
	return out
}

const timeLayout = "2006-01-02 15:04:05"

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case *float64:
		if x == nil {
			return ""
		}
		return strconv.FormatFloat(*x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.In(utils.MarketLocation).Format(timeLayout)
	case models.Side:
		return string(x)
	}
	return ""
}

package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-scanner/internal/config"
	"pattern-scanner/internal/models"
	"pattern-scanner/internal/scanner"
	"pattern-scanner/pkg/utils"
)

func event(symbol, scan string, seq int) models.Event {
	ev := models.Event{
		Symbol: symbol,
		Scan:   scan,
		Time:   time.Date(2024, 3, 4, 9, 30+seq, 0, 0, utils.MarketLocation),
		Price:  10 + float64(seq),
		Side:   models.SideUpper,
	}
	ev.Metrics.Set("seq", seq)
	return ev
}

func tickerRow(symbol, name string) models.TickerRow {
	return models.TickerRow{
		Ticker:       models.Ticker{Symbol: symbol, Type: "CS", Exchange: "XNAS", Name: name, Currency: "usd", Locale: "us"},
		ExchangeName: "Nasdaq",
	}
}

func TestAggregate_JoinsFirstTickerRowAndDropsUnknown(t *testing.T) {
	results := []scanner.SymbolResult{
		{Symbol: "AAA", Events: []models.Event{event("AAA", "Multi-Day-Breakout", 0), event("AAA", "Multi-Day-Breakout", 1)}},
		{Symbol: "BBB"},
		{Symbol: "ZZZ", Events: []models.Event{event("ZZZ", "Multi-Day-Breakout", 2)}},
		{Symbol: "CCC", Events: []models.Event{event("CCC", "Multi-Week-Breakout", 3)}},
	}
	tickers := []models.TickerRow{tickerRow("CCC", "Charlie"), tickerRow("AAA", "Alpha"), tickerRow("AAA", "Alpha duplicate"), tickerRow("BBB", "Bravo")}

	table := Aggregate(results, tickers)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, "AAA", table.Rows[0].Event.Symbol)
	assert.Equal(t, "Alpha", table.Rows[1].Ticker.Name)
	assert.Equal(t, "CCC", table.Rows[2].Event.Symbol)
	assert.Equal(t, []ScanCount{{"Multi-Day-Breakout", 2}, {"Multi-Week-Breakout", 1}}, table.Counts())

	assert.True(t, Aggregate(nil, tickers).Empty())
	assert.True(t, Aggregate(results, nil).Empty())
}

func TestAggregate_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("rows are the events of known symbols, in order, each exactly once", prop.ForAll(
		func(counts []int, known []bool) bool {
			var results []scanner.SymbolResult
			var tickers []models.TickerRow
			var want []string
			seq := 0
			for i, n := range counts {
				sym := fmt.Sprintf("S%02d", i)
				res := scanner.SymbolResult{Symbol: sym}
				isKnown := i < len(known) && known[i]
				for k := 0; k < n; k++ {
					res.Events = append(res.Events, event(sym, "scan", seq))
					if isKnown {
						want = append(want, fmt.Sprintf("%s/%d", sym, seq))
					}
					seq++
				}
				results = append(results, res)
				if isKnown {
					tickers = append(tickers, tickerRow(sym, sym+"-first"), tickerRow(sym, sym+"-second"))
				}
			}

			table := Aggregate(results, tickers)
			if table.Len() != len(want) {
				return false
			}
			for i, r := range table.Rows {
				if fmt.Sprintf("%s/%d", r.Event.Symbol, r.Event.Metrics.Int("seq")) != want[i] {
					return false
				}
				if r.Ticker.Name != r.Event.Symbol+"-first" {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestTable_ColumnsAndRecords(t *testing.T) {
	a := event("AAA", "Dip-Buy-Intraday", 0)
	a.Metrics.Set("pm_high", nil)
	mcap := 1.5e9
	a.Details = models.TickerDetails{MarketCap: &mcap, Sector: "Tech"}
	b := event("BBB", "Dip-Buy-Intraday", 1)
	b.Metrics.Set("dip_low_time", time.Date(2024, 3, 4, 14, 5, 0, 0, utils.MarketLocation))

	table := &Table{Rows: []Row{{Event: a, Ticker: tickerRow("AAA", "Alpha")}, {Event: b, Ticker: tickerRow("BBB", "Bravo")}}}
	cols := table.Columns()
	assert.Equal(t, []string{"symbol", "scan_name", "time", "price", "side", "seq", "pm_high", "dip_low_time"}, cols[:8])
	assert.Equal(t, "locale", cols[len(cols)-1])

	recs := table.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"AAA", "Dip-Buy-Intraday", "2024-03-04 09:30:00", "10", "upper", "0", "", ""}, recs[0][:8])
	assert.Equal(t, "2024-03-04 14:05:00", recs[1][7])
	assert.Equal(t, "1500000000", recs[0][8])
	assert.Equal(t, "", recs[1][8], "missing details stay empty")
	assert.Equal(t, "Tech", recs[0][11])
	for _, rec := range recs {
		assert.Len(t, rec, len(cols))
	}
}

func TestExporter_WritesResultsAndParams(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "records")
	e := NewExporter(dir, true, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2024, 7, 1, 18, 30, 5, 0, time.UTC) }

	table := Aggregate([]scanner.SymbolResult{{Symbol: "AAA", Events: []models.Event{event("AAA", "Multi-Day-Runners", 0)}}},
		[]models.TickerRow{tickerRow("AAA", "Alpha")})
	params := []config.ParamRow{{Parameter: "family", Value: "multi_day_runners"}, {Parameter: "ticker_types", Value: "CS, ETF"}}

	paths, err := e.Export("multi_day_runners", "weekly run", table, params)
	require.NoError(t, err)

	wantBase := filepath.Join(dir, "multi_day_runners", "multi_day_runners_weekly_run_2024-07-01_18_30_05")
	assert.Equal(t, wantBase+".csv", paths.Results)
	assert.Equal(t, wantBase+"_params.csv", paths.Params)
	assert.Equal(t, wantBase+".json", paths.JSON)

	f, err := os.Open(paths.Results)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "symbol", rows[0][0])
	assert.Equal(t, "AAA", rows[1][0])
	assert.Equal(t, "Alpha", rows[1][len(rows[1])-6])

	raw, err := os.ReadFile(paths.Params)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, []string{"parameter,value", "family,multi_day_runners", `ticker_types,"CS, ETF"`}, lines)

	raw, err = os.ReadFile(paths.JSON)
	require.NoError(t, err)
	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "Multi-Day-Runners", decoded[0]["scan_name"])
	assert.NotContains(t, decoded[0], "sector")
}

func TestExporter_EmptyTableWritesNothing(t *testing.T) {
	dir := t.TempDir()
	paths, err := NewExporter(dir, false, zerolog.Nop()).Export("dip_buy_days", "x", &Table{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Paths{}, paths)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

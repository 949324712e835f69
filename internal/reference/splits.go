package reference

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"pattern-scanner/internal/config"
	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// splitRow is one line of the reverse split table as exported by the data vendor.
type splitRow struct {
	Date   string `csv:"RS Date"`
	Symbol string `csv:"Symbol"`
	Ratio  string `csv:"Split Ratio"`
}

// SplitTable maps symbols to their reverse split. The first row per symbol wins.
type SplitTable struct {
	bySymbol map[string]models.ReverseSplit
	order    []string
}

// LoadSplits reads the reverse split table at path.
func LoadSplits(path string) (*SplitTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrReferenceTable, err)
	}
	defer f.Close()

	table, err := ParseSplits(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// ParseSplits decodes a CSV with the columns "RS Date", "Symbol" and "Split Ratio".
func ParseSplits(r io.Reader) (*SplitTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrReferenceTable, err)
	}
	text := strings.TrimPrefix(string(data), "\uFEFF")
	header := strings.SplitN(text, "\n", 2)[0]
	for _, col := range []string{"RS Date", "Symbol", "Split Ratio"} {
		if !strings.Contains(header, col) {
			return nil, fmt.Errorf("%w: missing column %q", apperrors.ErrReferenceTable, col)
		}
	}

	var rows []*splitRow
	if err := gocsv.UnmarshalBytes([]byte(text), &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrReferenceTable, err)
	}

	table := &SplitTable{bySymbol: make(map[string]models.ReverseSplit)}
	for i, row := range rows {
		symbol := strings.ToUpper(strings.TrimSpace(row.Symbol))
		if symbol == "" {
			continue
		}
		date, err := config.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", apperrors.ErrReferenceTable, i+2, err)
		}
		if _, dup := table.bySymbol[symbol]; dup {
			continue
		}
		table.bySymbol[symbol] = models.ReverseSplit{Symbol: symbol, Date: date, Ratio: strings.TrimSpace(row.Ratio)}
		table.order = append(table.order, symbol)
	}
	return table, nil
}

// Lookup returns the split of symbol.
func (t *SplitTable) Lookup(symbol string) (models.ReverseSplit, bool) {
	if t == nil {
		return models.ReverseSplit{}, false
	}
	s, ok := t.bySymbol[symbol]
	return s, ok
}

// Len returns the number of symbols in the table.
func (t *SplitTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Filter keeps the symbols present in the table, preserving their order.
func (t *SplitTable) Filter(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := t.Lookup(s); ok {
			out = append(out, s)
		}
	}
	return out
}

package cli

import (
	"fmt"
	"strings"
	"time"
)

// parseSymbols splits a comma or whitespace separated symbol list. Symbols are
// upper-cased and duplicates dropped, keeping first-seen order.
func parseSymbols(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// dedupe removes repeated symbols, keeping first-seen order.
func dedupe(symbols []string) []string {
	return parseSymbols(strings.Join(symbols, ","))
}

// formatSymbols lists at most max symbols followed by a count of the rest.
func formatSymbols(symbols []string, max int) string {
	if max <= 0 || len(symbols) <= max {
		return strings.Join(symbols, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(symbols[:max], ", "), len(symbols)-max)
}

// formatRate renders a throughput such as "12.5 symbols/s".
func formatRate(n int, d time.Duration, unit string) string {
	if d <= 0 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%.1f %s/s", float64(n)/d.Seconds(), unit)
}

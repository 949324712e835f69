package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pattern-scanner/internal/config"
	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/models"
	"pattern-scanner/internal/performance"
	"pattern-scanner/internal/reference"
	"pattern-scanner/internal/report"
	"pattern-scanner/internal/scanner"
	"pattern-scanner/pkg/utils"
)

func addScanCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newFamiliesCmd())
}

func newFamiliesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List the pattern families",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				type entry struct {
					Index       int    `json:"index"`
					Family      string `json:"family"`
					Description string `json:"description"`
				}
				var out []entry
				for i, f := range scanner.Families() {
					out = append(out, entry{Index: i + 1, Family: string(f), Description: scanner.Describe(f)})
				}
				return output.JSON(out)
			}

			table := NewTable(output, "#", "FAMILY", "DESCRIPTION").AlignRight(0)
			for i, f := range scanner.Families() {
				table.AddRow(strconv.Itoa(i+1), string(f), scanner.Describe(f))
			}
			table.Render()
			return nil
		},
	}
}

// scanSummary is the JSON form of a finished scan.
type scanSummary struct {
	RunID    string             `json:"run_id"`
	Family   string             `json:"family"`
	Symbols  int                `json:"symbols"`
	Scanned  int                `json:"scanned"`
	Failed   int                `json:"failed"`
	Events   int                `json:"events"`
	Exported int                `json:"exported"`
	Counts   []report.ScanCount `json:"counts"`
	Files    report.Paths       `json:"files"`
	Duration string             `json:"duration"`
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [family|index]",
		Short: "Scan historical candles for a pattern family",
		Long: `Run one pattern family over the ticker universe described by a parameter file.

The family comes from the argument, by name or by its index in 'scanner
families', or from the "family" key of the parameter file. Events are joined
with ticker reference data and written under <records>/<family>/.`,
		Example: `  scanner scan candle_breakout --params breakout.yaml
  scanner scan 9 --params rs.yaml --splits rs_list.csv
  scanner scan dip_buys_intraday --params dips.yaml --symbols AAPL,TSLA --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			paramsPath, _ := cmd.Flags().GetString("params")
			params, err := config.LoadRunParams(paramsPath)
			if err != nil {
				output.Error("Invalid parameter file: %v", err)
				return err
			}

			selector := params.Family
			if len(args) == 1 {
				selector = args[0]
			}
			family, err := scanner.ParseFamily(selector)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			runID := uuid.NewString()
			logger := logging.WithRun(app.Logger, runID, string(family))

			svc, err := openServices(app.Config, logger)
			if err != nil {
				output.Error("Setup failed: %v", err)
				return err
			}
			defer svc.Close()

			tickers, err := svc.catalog.TickerTable(ctx, params.TickerTypes)
			if err != nil {
				output.Error("Failed to load ticker universe: %v", err)
				return err
			}

			symbolsFlag, _ := cmd.Flags().GetString("symbols")
			symbols := selectSymbols(parseSymbols(symbolsFlag), params.Symbols, tickers)

			contexts, err := buildContexts(cmd, app, family, params, symbols)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if len(contexts) == 0 {
				output.Error("No symbols to scan")
				return apperrors.ErrNoSymbols
			}

			if !output.IsJSON() {
				output.Info("Scanning %d symbols for %s (run %s)", len(contexts), family, runID)
				output.Dim("Symbols: %s", formatSymbols(symbolsOf(contexts), 10))
			}

			deps := scanner.Deps{Candles: svc.candles, Details: svc.catalog, Logger: logger}
			results, stats, runErr := scanner.NewOrchestrator(deps, app.Config.Scan.Workers).Run(ctx, family, contexts)

			table := report.Aggregate(results, tickers)
			outDir, _ := cmd.Flags().GetString("out")
			if outDir == "" {
				outDir = app.Config.Scan.RecordsDir
			}
			withJSON := app.Config.Scan.Format == "json"
			if v, _ := cmd.Flags().GetBool("export-json"); v {
				withJSON = true
			}
			paths, err := report.NewExporter(outDir, withJSON, logger).Export(string(family), params.OutputFile, table, params.Audit)
			if err != nil {
				output.Error("Export failed: %v", err)
				return err
			}

			mem := performance.MemoryStats()
			logger.Info().
				Int("events", stats.Events).
				Int("exported", table.Len()).
				Int64("upstream_calls", svc.candles.UpstreamCalls()).
				Int64("cache_hits", svc.candles.CacheHits()).
				Str("heap", performance.FormatBytes(mem.HeapAlloc)).
				Str("breaker", string(svc.client.Breaker().State())).
				Msg("Run complete")

			summary := scanSummary{
				RunID:    runID,
				Family:   string(family),
				Symbols:  stats.Symbols,
				Scanned:  stats.Scanned,
				Failed:   stats.Failed,
				Events:   stats.Events,
				Exported: table.Len(),
				Counts:   table.Counts(),
				Files:    paths,
				Duration: stats.Duration.Round(time.Millisecond).String(),
			}
			if output.IsJSON() {
				if err := output.JSON(summary); err != nil {
					return err
				}
			} else {
				printSummary(output, summary, stats)
			}
			return runErr
		},
	}

	cmd.Flags().String("params", "", "YAML parameter file (required)")
	cmd.Flags().String("symbols", "", "comma separated symbols to scan instead of the universe")
	cmd.Flags().String("splits", "", "reverse split table for reverse_split (default: reference.splits_file)")
	cmd.Flags().String("out", "", "records directory (default: scan.records_dir)")
	cmd.Flags().Bool("export-json", false, "also write results as JSON")
	cmd.MarkFlagRequired("params")

	return cmd
}

// selectSymbols picks the scan universe: the flag, else the parameter file's
// list, else every ticker of the requested types.
func selectSymbols(flag, fromParams []string, tickers []models.TickerRow) []string {
	if len(flag) > 0 {
		return flag
	}
	if len(fromParams) > 0 {
		return dedupe(fromParams)
	}
	all := make([]string, 0, len(tickers))
	for _, t := range tickers {
		all = append(all, t.Symbol)
	}
	return dedupe(all)
}

// buildContexts turns symbols into scan contexts. Reverse split runs keep only
// symbols in the split table and anchor each context on its split date.
func buildContexts(cmd *cobra.Command, app *App, family scanner.Family, params *config.RunParams, symbols []string) ([]scanner.ScanContext, error) {
	if family != scanner.FamilyReverseSplit {
		out := make([]scanner.ScanContext, 0, len(symbols))
		for _, s := range symbols {
			out = append(out, scanner.ContextFromParams(params, s))
		}
		return out, nil
	}

	path, _ := cmd.Flags().GetString("splits")
	if path == "" {
		path = app.Config.Reference.SplitsFile
	}
	splits, err := reference.LoadSplits(path)
	if err != nil {
		return nil, err
	}
	return splitContexts(params, splits, symbols, time.Now().UTC()), nil
}

func splitContexts(params *config.RunParams, splits *reference.SplitTable, symbols []string, today time.Time) []scanner.ScanContext {
	kept := splits.Filter(symbols)
	out := make([]scanner.ScanContext, 0, len(kept))
	for _, s := range kept {
		split, _ := splits.Lookup(s)
		out = append(out, scanner.ContextFromParams(params, s).WithSplit(split, today))
	}
	return out
}

func symbolsOf(contexts []scanner.ScanContext) []string {
	out := make([]string, len(contexts))
	for i, sc := range contexts {
		out[i] = sc.Symbol
	}
	return out
}

func printSummary(output *Output, s scanSummary, stats scanner.RunStats) {
	output.Println()
	output.Bold("Scan %s", s.Family)
	output.Printf("  Symbols:  %s scanned, %s failed\n",
		utils.FormatQuantity(int64(s.Scanned)), utils.FormatQuantity(int64(s.Failed)))
	output.Printf("  Events:   %s found, %s exported\n",
		utils.FormatQuantity(int64(s.Events)), utils.FormatQuantity(int64(s.Exported)))
	output.Printf("  Duration: %s (%s)\n", s.Duration, formatRate(stats.Scanned, stats.Duration, "symbols"))

	if len(s.Counts) == 0 {
		output.Warning("No events found, nothing exported")
		return
	}
	output.Println()
	table := NewTable(output, "SCAN", "EVENTS").AlignRight(1)
	for _, c := range s.Counts {
		table.AddRow(c.Scan, strconv.Itoa(c.Count))
	}
	table.Render()

	output.Println()
	output.Success("Results:    %s", s.Files.Results)
	output.Success("Parameters: %s", s.Files.Params)
	if s.Files.JSON != "" {
		output.Success("JSON:       %s", s.Files.JSON)
	}
	if s.Failed > 0 {
		output.Warning("%d symbols failed, see the log for details", s.Failed)
	}
}

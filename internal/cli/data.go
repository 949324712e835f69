package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/reference"
	"pattern-scanner/internal/store"
	"pattern-scanner/pkg/utils"
)

// addDataCommands adds reference data and cache maintenance commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newReferenceCmd(app))
	rootCmd.AddCommand(newCacheCmd(app))
}

func newReferenceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Ticker and exchange reference data",
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Refresh the local ticker and exchange snapshot",
		Long: `Download the ticker listing for each requested type and the exchange list,
replacing the local snapshot used to join scan results.`,
		Example: `  scanner reference sync --types CS,ETF`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			types, _ := cmd.Flags().GetString("types")

			svc, err := openServices(app.Config, app.Logger)
			if err != nil {
				output.Error("Setup failed: %v", err)
				return err
			}
			defer svc.Close()

			result, err := svc.catalog.Sync(cmd.Context(), parseSymbols(types))
			if err != nil {
				output.Error("Sync failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			printSync(output, result)
			return nil
		},
	}
	sync.Flags().String("types", "CS", "comma separated ticker types")
	cmd.AddCommand(sync)

	return cmd
}

func printSync(output *Output, result reference.SyncResult) {
	types := make([]string, 0, len(result.Tickers))
	for t := range result.Tickers {
		types = append(types, t)
	}
	sort.Strings(types)

	table := NewTable(output, "TYPE", "TICKERS").AlignRight(1)
	for _, t := range types {
		table.AddRow(t, utils.FormatQuantity(int64(result.Tickers[t])))
	}
	table.Render()
	output.Success("Synced %d exchanges", result.Exchanges)
}

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Candle cache maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show candle cache contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cache, err := openCache(app)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			defer cache.Close()

			stats, err := cache.Stats(cmd.Context())
			if err != nil {
				output.Error("Failed to read cache: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(stats)
			}
			output.Bold("Candle Cache")
			output.Printf("  Backend:   %s\n", stats.Backend)
			output.Printf("  Location:  %s\n", stats.Location)
			output.Printf("  Entries:   %s\n", utils.FormatQuantity(stats.Entries))
			output.Printf("  Candles:   %s\n", utils.FormatQuantity(stats.Candles))
			return nil
		},
	})

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached candle sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				output.Warning("This removes every cached candle sequence. Re-run with --yes to confirm.")
				return nil
			}
			cache, err := openCache(app)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			defer cache.Close()

			n, err := cache.Clear(cmd.Context())
			if err != nil {
				output.Error("Failed to clear cache: %v", err)
				return err
			}
			app.Logger.Info().Int64("entries", n).Msg("Candle cache cleared")
			if output.IsJSON() {
				return output.JSON(map[string]int64{"removed": n})
			}
			output.Success("Removed %s entries", strconv.FormatInt(n, 10))
			return nil
		},
	}
	clear.Flags().Bool("yes", false, "confirm removal")
	cmd.AddCommand(clear)

	return cmd
}

func openCache(app *App) (store.CandleCache, error) {
	cache, err := store.Open(app.Config.Cache, app.Logger)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return nil, fmt.Errorf("%w: disabled by cache.enabled or cache.backend", apperrors.ErrCacheUnavailable)
	}
	return cache, nil
}

package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newExamplesCmd())
	rootCmd.AddCommand(newQuickstartCmd(app))
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		Long:  "Display examples of common scanning workflows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "First Run",
					commands: []string{
						"scanner config path              # Where config.toml lives",
						"scanner config validate          # Check settings and API key",
						"scanner reference sync --types CS,ETF",
					},
				},
				{
					title: "Breakouts",
					commands: []string{
						"scanner families                 # List families and indices",
						"scanner scan candle_breakout --params breakout.yaml",
						"scanner scan 1 --params breakout.yaml --symbols AAPL,MSFT",
					},
				},
				{
					title: "Intraday Dips",
					commands: []string{
						"scanner scan dip_buys_intraday --params dips.yaml",
						"scanner scan gap_down_dip_bought --params gaps.yaml --json",
					},
				},
				{
					title: "Reverse Splits",
					commands: []string{
						"scanner scan reverse_split --params rs.yaml --splits rs_list.csv",
					},
				},
				{
					title: "Cache Maintenance",
					commands: []string{
						"scanner cache stats              # Entries and candles cached",
						"scanner cache clear --yes        # Start from an empty cache",
					},
				},
			}

			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n",
							output.ColoredString(ColorCyan, strings.TrimSpace(parts[0])),
							output.ColoredString(ColorDim, strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.ColoredString(ColorCyan, c))
					}
				}
				output.Println()
			}

			return nil
		},
	}
}

const sampleParams = `family: candle_breakout
output_file: weekly-run
start_date: 2024-01-02
end_date: 2024-06-28
adjusted: "yes"
ticker_types: CS, ETF
minimum_price: 1
maximum_price: 50
minimum_average_volume: 500000
minimum_average_turnover: 1000000
daily_breakout_period: 20
weekly_breakout_period: 8
monthly_breakout_period: 6
minimum_traded_volume: 100000
`

func newQuickstartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		Long:  "Step-by-step guide for new users.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Pattern Scanner - Quick Start Guide")
			output.Println()

			output.Info("1. Add your market data API key")
			output.Printf("   Set POLYGON_API_KEY or edit %s/credentials.toml\n", app.Config.Dir)
			output.Println()

			output.Info("2. Write a parameter file, for example breakout.yaml:")
			for _, line := range strings.Split(strings.TrimSpace(sampleParams), "\n") {
				output.Printf("   %s\n", line)
			}
			output.Println()

			output.Info("3. Run the scan")
			output.Println("   scanner scan --params breakout.yaml")
			output.Println()

			output.Info("4. Open the results")
			output.Printf("   %s/candle_breakout/\n", app.Config.Scan.RecordsDir)
			return nil
		},
	}
}

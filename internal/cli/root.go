// Package cli provides the command-line interface for the pattern scanner.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pattern-scanner/internal/config"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/security"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-07-01"
)

// App holds the application dependencies shared by commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "scanner",
		Short: "Historical OHLCV pattern-event scanner",
		Long: `Scanner looks for price-action patterns in historical daily and minute
candles of US equities: range breakouts, multi-day runners, dip buys,
after-hours breakouts, delisting-zone moves and post reverse split moves.

Each run reads a YAML parameter file and writes its events under
records/<family>/.

Use 'scanner families' to list the pattern families.
Use 'scanner examples' to see common workflows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/pattern-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addScanCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addHelpCommands(rootCmd, app)

	return rootCmd
}

func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Pattern Scanner v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			masked := maskedConfig(app.Config)
			if output.IsJSON() {
				return output.JSON(masked)
			}
			return showConfig(output, masked)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Dir})
			} else {
				output.Println(app.Config.Dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			keyErr := app.Config.RequireAPIKey()
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"valid": true, "api_key": keyErr == nil})
			}
			output.Success("Configuration is valid")
			if keyErr != nil {
				output.Warning("%v", keyErr)
			}
			return nil
		},
	})

	return cmd
}

// maskedConfig returns a copy of cfg safe to print.
func maskedConfig(cfg *config.Config) config.Config {
	c := *cfg
	c.Credentials.Polygon.APIKey = security.MaskCredential(c.Credentials.Polygon.APIKey)
	c.Polygon.BaseURL = security.RedactURL(c.Polygon.BaseURL)
	return c
}

func showConfig(output *Output, cfg config.Config) error {
	output.Bold("Market Data")
	output.Printf("  Base URL:        %s\n", cfg.Polygon.BaseURL)
	output.Printf("  API Key:         %s\n", cfg.Credentials.Polygon.APIKey)
	output.Printf("  Timeout:         %s\n", cfg.Polygon.Timeout)
	output.Printf("  Requests/min:    %d\n", cfg.Polygon.RequestsPerMinute)
	output.Printf("  Breaker:         %d failures, %s cooldown\n", cfg.Polygon.BreakerThreshold, cfg.Polygon.BreakerCooldown)
	output.Println()

	output.Bold("Candle Cache")
	output.Printf("  Enabled:         %v\n", cfg.Cache.Enabled)
	output.Printf("  Backend:         %s\n", cfg.Cache.Backend)
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		output.Printf("  Redis:           %s/%d\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	case config.CacheBackendSQLite:
		output.Printf("  Path:            %s\n", cfg.Cache.Path)
	}
	output.Println()

	output.Bold("Retry")
	output.Printf("  Max Attempts:    %d\n", cfg.Retry.MaxAttempts)
	output.Printf("  Delay:           %s .. %s (x%.1f)\n", cfg.Retry.InitialDelay, cfg.Retry.MaxDelay, cfg.Retry.BackoffFactor)
	output.Printf("  Max Wait:        %s\n", cfg.Retry.MaxWait)
	output.Println()

	output.Bold("Scan")
	output.Printf("  Workers:         %d\n", cfg.Scan.Workers)
	output.Printf("  Records Dir:     %s\n", cfg.Scan.RecordsDir)
	output.Printf("  Format:          %s\n", cfg.Scan.Format)
	output.Println()

	output.Bold("Reference")
	output.Printf("  Snapshot DB:     %s\n", cfg.Reference.DBPath)
	output.Printf("  Max Age:         %s\n", cfg.Reference.MaxAge)
	output.Printf("  Fetch Details:   %v\n", cfg.Reference.FetchDetails)
	output.Printf("  Splits File:     %s\n", cfg.Reference.SplitsFile)

	return nil
}

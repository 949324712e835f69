// Package logging builds the zerolog loggers shared by every package.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string
	Console bool
	// NoColor prints plain level labels, for consoles that are not terminals.
	NoColor    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

var levelLabels = map[string]struct {
	text string
	attr color.Attribute
}{
	"debug": {"DBG", color.FgCyan},
	"info":  {"INF", color.FgGreen},
	"warn":  {"WRN", color.FgYellow},
	"error": {"ERR", color.FgRed},
	"fatal": {"FTL", color.FgRed},
	"panic": {"PNC", color.FgRed},
}

func formatLevel(noColor bool) zerolog.Formatter {
	return func(i interface{}) string {
		name, _ := i.(string)
		label, ok := levelLabels[name]
		if !ok {
			return name
		}
		if noColor {
			return label.text
		}
		c := color.New(label.attr)
		c.EnableColor()
		return c.Sprint(label.text)
	}
}

// NewLoggerWithConfig builds the run logger: a console writer on stderr, so
// JSON on stdout stays clean, and an optional rotating file.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:         os.Stderr,
			NoColor:     cfg.NoColor,
			TimeFormat:  time.RFC3339,
			FormatLevel: formatLevel(cfg.NoColor),
		})
	}
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer = os.Stderr
	switch len(writers) {
	case 0:
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	return zerolog.New(writer).With().Timestamp().Logger()
}

// parseLevel defaults to info for empty or unknown names.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// WithRun tags every entry with the scan run identifier and family.
func WithRun(logger zerolog.Logger, runID, family string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Str("family", family).Logger()
}

// LogAPICall logs an API call.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}

// LogEvent logs a detected pattern occurrence.
func LogEvent(logger zerolog.Logger, scan string, at time.Time, price float64) {
	logger.Debug().
		Str("event", "pattern").
		Str("scan", scan).
		Time("at", at).
		Float64("price", price).
		Msg("Pattern detected")
}

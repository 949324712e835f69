package scanner

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/models"
	"pattern-scanner/internal/performance"
)

// SymbolResult is the outcome of one symbol's scan.
type SymbolResult struct {
	Symbol string
	Events []models.Event
	// Err is set when the scan aborted; Events then holds what was found before.
	Err error
}

// RunStats summarizes an orchestrated run.
type RunStats struct {
	Symbols  int
	Scanned  int
	Failed   int
	Events   int
	Duration time.Duration
}

// Orchestrator runs one detector per symbol on a worker pool.
type Orchestrator struct {
	deps    Deps
	workers int
	logger  zerolog.Logger
}

// NewOrchestrator creates an orchestrator. workers <= 0 uses one worker per CPU.
func NewOrchestrator(deps Deps, workers int) *Orchestrator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Orchestrator{deps: deps, workers: workers, logger: logging.WithOperation(deps.Logger, "orchestrator")}
}

// Run scans every context with a detector of family f and returns one result
// per context, in input order. Failures are confined to their symbol. Symbols
// not started before ctx ended carry the context error.
func (o *Orchestrator) Run(ctx context.Context, f Family, contexts []ScanContext) ([]SymbolResult, RunStats, error) {
	if _, err := NewDetector(f, ScanContext{}, o.deps); err != nil {
		return nil, RunStats{}, err
	}

	started := time.Now()
	o.logger.Info().Str("family", string(f)).Int("symbols", len(contexts)).Int("workers", o.workers).Msg("Starting scan")

	results, _ := performance.Map(ctx, o.workers, contexts, func(ctx context.Context, _ int, sc ScanContext) SymbolResult {
		return o.scanSymbol(ctx, f, sc)
	})

	stats := RunStats{Symbols: len(contexts)}
	for i := range results {
		if results[i].Symbol == "" {
			results[i] = SymbolResult{Symbol: contexts[i].Symbol, Err: ctx.Err()}
			if results[i].Err == nil {
				results[i].Err = context.Canceled
			}
		} else {
			stats.Scanned++
		}
		if results[i].Err != nil {
			stats.Failed++
		}
		stats.Events += len(results[i].Events)
	}
	stats.Duration = time.Since(started)

	o.logger.Info().Int("scanned", stats.Scanned).Int("failed", stats.Failed).
		Int("events", stats.Events).Dur("duration", stats.Duration).Msg("Scan finished")
	return results, stats, ctx.Err()
}

func (o *Orchestrator) scanSymbol(ctx context.Context, f Family, sc ScanContext) (res SymbolResult) {
	res.Symbol = sc.Symbol
	logger := logging.WithSymbol(o.logger, sc.Symbol)
	defer func() {
		if r := recover(); r != nil {
			res.Err = apperrors.NewScanError(string(f), sc.Symbol, "panic", fmt.Errorf("%v", r))
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Detector panicked")
		}
	}()

	d, err := NewDetector(f, sc, o.deps)
	if err != nil {
		res.Err = err
		return res
	}
	res.Events, res.Err = Run(ctx, d)
	if res.Err != nil {
		logger.Error().Err(res.Err).
			Time("start", sc.Start).Time("end", sc.End).
			Int("events_kept", len(res.Events)).
			Msg("Symbol scan aborted")
	}
	return res
}

package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"pattern-scanner/internal/config"
	"pattern-scanner/internal/logging"
	"pattern-scanner/pkg/utils"
)

// Paths lists the files written by one export.
type Paths struct {
	Results string `json:"results"`
	Params  string `json:"params"`
	JSON    string `json:"json,omitempty"`
}

// Exporter writes result and parameter tables under a records directory,
// one subdirectory per family.
type Exporter struct {
	dir    string
	json   bool
	logger zerolog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter rooted at the records directory dir.
// withJSON adds a JSON copy of the results next to the CSV.
func NewExporter(dir string, withJSON bool, logger zerolog.Logger) *Exporter {
	return &Exporter{
		dir:    dir,
		json:   withJSON,
		logger: logging.WithOperation(logger, "export"),
		now:    time.Now,
	}
}

// BaseName returns <root>/<family>/<family>_<output>_<timestamp>, with
// characters awkward in file names replaced.
func (e *Exporter) BaseName(family, output string) string {
	stamp := e.now().Format("2006-01-02 15:04:05")
	name := utils.SanitizeFileName(fmt.Sprintf("%s_%s_%s", family, output, stamp))
	return filepath.Join(e.dir, family, name)
}

// Export writes the results table and the parameter audit table. An empty
// table writes nothing and returns zero Paths.
func (e *Exporter) Export(family, output string, table *Table, params []config.ParamRow) (Paths, error) {
	if table.Empty() {
		e.logger.Info().Str("family", family).Msg("No events, nothing exported")
		return Paths{}, nil
	}

	base := e.BaseName(family, output)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating records directory: %w", err)
	}

	paths := Paths{Results: base + ".csv", Params: base + "_params.csv"}
	if err := writeResults(paths.Results, table); err != nil {
		return Paths{}, err
	}
	if err := writeParams(paths.Params, params); err != nil {
		return Paths{}, err
	}
	if e.json {
		paths.JSON = base + ".json"
		if err := writeJSON(paths.JSON, table); err != nil {
			return Paths{}, err
		}
	}

	e.logger.Info().
		Str("results", paths.Results).
		Str("params", paths.Params).
		Int("rows", table.Len()).
		Msg("Exported results")
	return paths, nil
}

// writeResults writes one CSV row per event. The metric columns vary by run,
// so rows are written from Columns/Records rather than a fixed struct.
func writeResults(path string, table *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns()); err != nil {
		return fmt.Errorf("writing results header: %w", err)
	}
	if err := w.WriteAll(table.Records()); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return f.Close()
}

func writeParams(path string, params []config.ParamRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating parameters file: %w", err)
	}
	defer f.Close()

	rows := make([]*config.ParamRow, len(params))
	for i := range params {
		rows[i] = &params[i]
	}
	if err := gocsv.Marshal(&rows, f); err != nil {
		return fmt.Errorf("writing parameters: %w", err)
	}
	return f.Close()
}

func writeJSON(path string, table *Table) error {
	cols := table.Columns()
	records := table.Records()
	out := make([]map[string]string, len(records))
	for i, rec := range records {
		m := make(map[string]string, len(cols))
		for j, c := range cols {
			if rec[j] != "" {
				m[c] = rec[j]
			}
		}
		out[i] = m
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results json: %w", err)
	}
	return nil
}

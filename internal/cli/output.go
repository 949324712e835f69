package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// Styles for terminal output
const (
	ColorRed    = color.FgRed
	ColorGreen  = color.FgGreen
	ColorYellow = color.FgYellow
	ColorCyan   = color.FgCyan
	ColorBold   = color.Bold
	ColorDim    = color.Faint
)

// Output writes command results either as styled text or, with --json, as
// indented JSON documents.
type Output struct {
	w     io.Writer
	json  bool
	color bool
}

// NewOutput binds an Output to the command's stdout and flags.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	return &Output{w: w, json: jsonMode, color: !jsonMode && isTerminal(w)}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// IsJSON reports whether --json was given.
func (o *Output) IsJSON() bool { return o.json }

// JSON encodes v as one indented document.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *Output) Println(args ...interface{}) { fmt.Fprintln(o.w, args...) }

func (o *Output) Printf(format string, args ...interface{}) { fmt.Fprintf(o.w, format, args...) }

func (o *Output) Success(format string, args ...interface{}) { o.line(ColorGreen, format, args) }
func (o *Output) Error(format string, args ...interface{})   { o.line(ColorRed, format, args) }
func (o *Output) Warning(format string, args ...interface{}) { o.line(ColorYellow, format, args) }
func (o *Output) Info(format string, args ...interface{})    { o.line(ColorCyan, format, args) }
func (o *Output) Bold(format string, args ...interface{})    { o.line(ColorBold, format, args) }
func (o *Output) Dim(format string, args ...interface{})     { o.line(ColorDim, format, args) }

func (o *Output) line(attr color.Attribute, format string, args []interface{}) {
	fmt.Fprintln(o.w, o.style(attr).Sprintf(format, args...))
}

// style returns a color for attr that follows this output's setting rather
// than the package-wide stdout detection of fatih/color.
func (o *Output) style(attr color.Attribute) *color.Color {
	c := color.New(attr)
	if o.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// ColoredString styles text without a trailing newline.
func (o *Output) ColoredString(attr color.Attribute, text string) string {
	return o.style(attr).Sprint(text)
}

// Table buffers rows and prints them as aligned columns.
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
	right   map[int]bool
}

// NewTable starts a table with the given column headers.
func NewTable(out *Output, headers ...string) *Table {
	return &Table{out: out, headers: headers, right: make(map[int]bool)}
}

// AlignRight right-aligns the given columns, for counts and amounts.
func (t *Table) AlignRight(cols ...int) *Table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// AddRow appends a row. Cells beyond the header count are ignored.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render prints the header, a rule and every row.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for _, row := range append([][]string{t.headers}, t.rows...) {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], visibleWidth(row[i]))
		}
	}

	header := make([]string, len(t.headers))
	for i, h := range t.headers {
		header[i] = t.out.ColoredString(ColorBold, t.pad(i, h, widths[i]))
	}
	t.out.Println(strings.Join(header, "  "))

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	t.out.Println(t.out.ColoredString(ColorDim, strings.Join(rule, "  ")))

	for _, row := range t.rows {
		cells := make([]string, 0, len(widths))
		for i := 0; i < len(row) && i < len(widths); i++ {
			cells = append(cells, t.pad(i, row[i], widths[i]))
		}
		t.out.Println(strings.Join(cells, "  "))
	}
}

func (t *Table) pad(col int, cell string, width int) string {
	fill := strings.Repeat(" ", max(0, width-visibleWidth(cell)))
	if t.right[col] {
		return fill + cell
	}
	return cell + fill
}

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*m")

// stripANSI removes terminal color sequences.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// visibleWidth counts the runes a cell occupies once styling is removed.
func visibleWidth(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/pkg/utils"
)

// YesNo is a boolean that also accepts yes/no spellings.
type YesNo bool

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *YesNo) UnmarshalYAML(node *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case "yes", "y", "true", "on", "1":
		*b = true
	case "no", "n", "false", "off", "0", "":
		*b = false
	default:
		return fmt.Errorf("line %d: %q is not yes/no", node.Line, node.Value)
	}
	return nil
}

// StringList accepts either a YAML sequence or a comma separated scalar.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	var raw []string
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&raw); err != nil {
			return err
		}
	case yaml.ScalarNode:
		raw = strings.Split(node.Value, ",")
	default:
		return fmt.Errorf("line %d: expected a list or comma separated string", node.Line)
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// Date is a calendar day parsed from several common layouts.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"1/2/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
}

// ParseDate parses s with the first matching layout.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return utils.DateOnly(t.UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	t, err := ParseDate(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Time = t
	return nil
}

// String formats the date the way the market data API expects.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// ParamRow is one line of the parameters audit table.
type ParamRow struct {
	Parameter string `csv:"parameter" json:"parameter"`
	Value     string `csv:"value" json:"value"`
}

// RunParams holds the parameters of one scan run.
type RunParams struct {
	Family               string     `yaml:"family"`
	OutputFile           string     `yaml:"output_file"`
	StartDate            Date       `yaml:"start_date"`
	EndDate              Date       `yaml:"end_date"`
	Adjusted             YesNo      `yaml:"adjusted"`
	OutsideNormalSession *YesNo     `yaml:"outside_normal_session"`
	TickerTypes          StringList `yaml:"ticker_types"`
	Symbols              StringList `yaml:"symbols"`

	MinimumPrice           float64 `yaml:"minimum_price"`
	MaximumPrice           float64 `yaml:"maximum_price"`
	MinimumAverageVolume   float64 `yaml:"minimum_average_volume"`
	MinimumAverageTurnover float64 `yaml:"minimum_average_turnover"`
	MinimumTradedVolume    float64 `yaml:"minimum_traded_volume"`

	DailyBreakoutPeriod   int `yaml:"daily_breakout_period"`
	WeeklyBreakoutPeriod  int `yaml:"weekly_breakout_period"`
	MonthlyBreakoutPeriod int `yaml:"monthly_breakout_period"`

	MultiDayRunnersPeriod int `yaml:"multi_day_runners_period"`

	MinimumFirstMoveSizePercent float64 `yaml:"minimum_first_move_size_percent"`
	MinimumRedCandles           int     `yaml:"minimum_red_candles"`
	MinimumBounceSizePercent    float64 `yaml:"minimum_bounce_size_percent"`

	AHPMBreakoutInPreMarket YesNo `yaml:"ah_pm_breakout_in_pre_market"`

	MinimumEODDipPercent       float64 `yaml:"minimum_eod_dip_percent"`
	MinimumEODDipBoughtPercent float64 `yaml:"minimum_eod_dip_bought_percent"`
	MinimumRange               float64 `yaml:"minimum_range"`
	MinimumGapDownPercent      float64 `yaml:"minimum_gap_down_percent"`
	MinimumDipBoughtPercent    float64 `yaml:"minimum_dip_bought_percent"`

	MoveDays          int     `yaml:"move_days"`
	MinimumMoveSize   float64 `yaml:"minimum_move_size"`
	MinimumMoveVolume float64 `yaml:"minimum_move_volume"`

	// Audit keeps the parameters as written, in file order.
	Audit []ParamRow `yaml:"-"`
}

// ExtendedSession reports whether candles outside regular hours are requested.
// Extended hours are on unless the file turns them off.
func (p *RunParams) ExtendedSession() bool {
	if p.OutsideNormalSession == nil {
		return true
	}
	return bool(*p.OutsideNormalSession)
}

// LoadRunParams reads and validates a YAML parameter file.
func LoadRunParams(path string) (*RunParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameter file: %w", err)
	}
	params, err := ParseRunParams(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return params, nil
}

// ParseRunParams decodes and validates parameter YAML.
func ParseRunParams(data []byte) (*RunParams, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}

	params := &RunParams{}
	if err := root.Decode(params); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}
	params.Audit = auditRows(&root)

	if strings.TrimSpace(params.OutputFile) == "" {
		params.OutputFile = params.Family
	}
	params.OutputFile = strings.TrimSpace(params.OutputFile)
	params.Family = strings.TrimSpace(params.Family)

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// Validate checks the run parameters shared by every family.
func (p *RunParams) Validate() error {
	if p.StartDate.IsZero() {
		return apperrors.NewValidationError("start_date", "", "is required")
	}
	if p.EndDate.IsZero() {
		return apperrors.NewValidationError("end_date", "", "is required")
	}
	if p.EndDate.Before(p.StartDate.Time) {
		return apperrors.NewValidationError("end_date", p.EndDate.String(), "is before start_date")
	}
	if len(p.TickerTypes) == 0 {
		return apperrors.NewValidationError("ticker_types", "", "at least one ticker type is required")
	}
	if p.MinimumPrice < 0 || p.MaximumPrice < p.MinimumPrice {
		return apperrors.NewValidationError("maximum_price", p.MaximumPrice, "must be at least minimum_price")
	}
	if p.MinimumAverageVolume < 0 || p.MinimumAverageTurnover < 0 {
		return apperrors.NewValidationError("minimum_average_volume", p.MinimumAverageVolume, "volume floors must be non-negative")
	}
	return nil
}

// auditRows flattens the top level mapping into parameter/value rows.
func auditRows(root *yaml.Node) []ParamRow {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	rows := make([]ParamRow, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, val := mapping.Content[i], mapping.Content[i+1]
		rows = append(rows, ParamRow{Parameter: key.Value, Value: nodeText(val)})
	}
	return rows
}

func nodeText(n *yaml.Node) string {
	if n.Kind == yaml.SequenceNode {
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			parts = append(parts, c.Value)
		}
		return strings.Join(parts, ", ")
	}
	return n.Value
}

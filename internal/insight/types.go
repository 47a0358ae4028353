// Package insight holds the data model shared by the analysis pipeline:
// dataset profiles, analysis results, chart specs and conversation turns.
package insight

import (
	"strings"
	"time"
)

// ColumnType is the inferred type of a CSV column.
type ColumnType string

const (
	TypeEmpty   ColumnType = "empty"
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeDate    ColumnType = "date"
	TypeString  ColumnType = "string"
)

// ColumnProfile captures inferred type and statistics per column.
type ColumnProfile struct {
	Name         string     `json:"name"`
	InferredType ColumnType `json:"inferredType"`
	MissingCount int        `json:"missingCount"`
	NonNull      int        `json:"nonNullCount"`
	Unique       int        `json:"uniqueCount"`
	// Numeric stats, set only for integer and float columns.
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Mean     *float64 `json:"mean,omitempty"`
	Examples []string `json:"examples,omitempty"`
}

// IsNumeric reports whether the column was inferred as integer or float.
func (c ColumnProfile) IsNumeric() bool {
	return c.InferredType == TypeInteger || c.InferredType == TypeFloat
}

// DatasetProfile summarizes one uploaded file.
type DatasetProfile struct {
	RowCount    int             `json:"rowCount"`
	ColumnCount int             `json:"columnCount"`
	Columns     []ColumnProfile `json:"columns"`
}

// Header returns the column names in file order.
func (p *DatasetProfile) Header() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = c.Name
	}
	return out
}

// ChartType enumerates the chart kinds a finding can carry.
type ChartType string

const (
	ChartBar     ChartType = "bar"
	ChartLine    ChartType = "line"
	ChartPie     ChartType = "pie"
	ChartScatter ChartType = "scatter"
)

// ParseChartType accepts any casing of a known chart type.
func ParseChartType(s string) (ChartType, bool) {
	switch ChartType(strings.ToLower(strings.TrimSpace(s))) {
	case ChartBar:
		return ChartBar, true
	case ChartLine:
		return ChartLine, true
	case ChartPie:
		return ChartPie, true
	case ChartScatter:
		return ChartScatter, true
	}
	return "", false
}

// DataKeys tells a renderer which row keys map to which chart channels.
// Y is always a list, even for a single series.
type DataKeys struct {
	X     string   `json:"x,omitempty"`
	Y     []string `json:"y,omitempty"`
	Name  string   `json:"name,omitempty"`
	Value string   `json:"value,omitempty"`
}

// Referenced returns every non-empty key named by the data keys.
func (k DataKeys) Referenced() []string {
	var out []string
	if k.X != "" {
		out = append(out, k.X)
	}
	for _, y := range k.Y {
		if y != "" {
			out = append(out, y)
		}
	}
	if k.Name != "" {
		out = append(out, k.Name)
	}
	if k.Value != "" {
		out = append(out, k.Value)
	}
	return out
}

// Row is one chart data point keyed by column header. Values are float64,
// string, bool or nil.
type Row map[string]any

// PlotSpec is a chart-ready visualization attached to a finding.
type PlotSpec struct {
	ChartType   ChartType `json:"chartType"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Data        []Row     `json:"data"`
	DataKeys    DataKeys  `json:"dataKeys"`
}

// Finding is one unit of analysis text, optionally paired with a chart.
type Finding struct {
	Insight string    `json:"insight"`
	Plot    *PlotSpec `json:"plot,omitempty"`
}

// InspectionColumn describes a column as reported back by the model.
type InspectionColumn struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// InspectionSummary is the model's view of the dataset shape.
type InspectionSummary struct {
	RowCount    int                `json:"rowCount"`
	ColumnCount int                `json:"columnCount"`
	Columns     []InspectionColumn `json:"columns,omitempty"`
}

// AnalysisResult is produced once per user turn and not mutated after it
// is finalized.
type AnalysisResult struct {
	InspectionSummary  *InspectionSummary `json:"inspectionSummary,omitempty"`
	Findings           []Finding          `json:"findings"`
	SuggestedFollowups []string           `json:"suggestedFollowups,omitempty"`
}

// Text flattens the findings into plain text for transcripts.
func (r *AnalysisResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		s := strings.TrimSpace(f.Insight)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// PreAnalysisResult is the quick-recognition answer shown before chat starts.
type PreAnalysisResult struct {
	Summary            string   `json:"summary"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
}

// Sender identifies who authored a turn.
type Sender string

const (
	SenderUser  Sender = "USER"
	SenderAgent Sender = "AGENT"
)

// ConversationTurn is one message of the chat transcript.
type ConversationTurn struct {
	ID             string          `json:"id"`
	Sender         Sender          `json:"sender"`
	Text           string          `json:"text"`
	AnalysisResult *AnalysisResult `json:"analysisResult,omitempty"`
	IsError        bool            `json:"isError,omitempty"`
	InFlight       bool            `json:"inFlight,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

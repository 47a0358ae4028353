package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/KaramelBytes/datachat-cli/internal/ai"
	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

// Output schemas sent with each kind of request.
var (
	AnalysisSchema = ai.MustSchemaFor[wireAnalysis](
		"analysis_result", "Findings about the dataset, each optionally with a chart.", true)
	PreAnalysisSchema = ai.MustSchemaFor[wirePreAnalysis](
		"pre_analysis_result", "A short description of the dataset and suggested questions.", true)
	SummarySchema = ai.MustSchemaFor[wireSummary](
		"conversation_summary", "Rolling summary of older conversation turns.", true)
)

type wireAnalysis struct {
	InspectionSummary  *wireInspection `json:"inspectionSummary,omitempty"`
	Findings           []wireFinding   `json:"findings" jsonschema:"required,minItems=1"`
	SuggestedFollowups []string        `json:"suggestedFollowups,omitempty" jsonschema:"maxItems=3"`
}

type wireInspection struct {
	RowCount    int              `json:"rowCount" jsonschema:"required"`
	ColumnCount int              `json:"columnCount" jsonschema:"required"`
	Columns     []wireInspColumn `json:"columns,omitempty"`
}

type wireInspColumn struct {
	Name        string `json:"name" jsonschema:"required"`
	Type        string `json:"type" jsonschema:"required"`
	Description string `json:"description,omitempty"`
}

type wireFinding struct {
	Insight string    `json:"insight" jsonschema:"required"`
	Plot    *wirePlot `json:"plot,omitempty"`
}

type wirePlot struct {
	ChartType   string       `json:"chartType" jsonschema:"required,enum=bar,enum=line,enum=pie,enum=scatter"`
	Title       string       `json:"title" jsonschema:"required"`
	Description string       `json:"description,omitempty"`
	Data        tableData    `json:"data" jsonschema:"required" jsonschema_description:"JSON-encoded 2-D array of strings; the first row is the header, e.g. [[\"Month\",\"Sales\"],[\"Jan\",\"150\"]]"`
	DataKeys    wireDataKeys `json:"dataKeys" jsonschema:"required"`
}

type wireDataKeys struct {
	X     string `json:"x,omitempty"`
	Y     yKeys  `json:"y,omitempty"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
}

type wirePreAnalysis struct {
	Summary            string   `json:"summary" jsonschema:"required"`
	SuggestedQuestions []string `json:"suggestedQuestions" jsonschema:"required"`
}

type wireSummary struct {
	Summary string `json:"summary" jsonschema:"required"`
}

// tableData keeps plot.data undecoded: the service sends a JSON-encoded 2-D
// array as a string, already-normalized results carry row objects.
type tableData []byte

func (t *tableData) UnmarshalJSON(b []byte) error {
	*t = append((*t)[:0], b...)
	return nil
}

func (tableData) JSONSchema() *jsonschema.Schema {
	// The field tag carries the description; the reflector replaces any set here.
	return &jsonschema.Schema{Type: "string"}
}

// yKeys accepts either a list of keys or a single key.
type yKeys []string

func (y *yKeys) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*y = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*y = nil
		} else {
			*y = yKeys{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("dataKeys.y: %w", err)
	}
	*y = list
	return nil
}

func (yKeys) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
}

func (w *wireInspection) toInsight() *insight.InspectionSummary {
	if w == nil {
		return nil
	}
	out := &insight.InspectionSummary{RowCount: w.RowCount, ColumnCount: w.ColumnCount}
	for _, c := range w.Columns {
		out.Columns = append(out.Columns, insight.InspectionColumn(c))
	}
	return out
}

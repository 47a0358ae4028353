// Package normalize turns raw completion JSON into typed, chart-ready values.
//
// Chart data arrives as a header-first 2-D table, usually JSON-encoded as a
// string. It is transposed into row objects and each cell that reads as a
// finite number is coerced to float64. Row-object data passes through, so
// normalizing an already-normalized result is a no-op.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

// MaxFollowups caps the follow-up questions kept from an analysis. The
// analysis schema and the output rules in package prompt use the same limit.
const MaxFollowups = 3

// Analysis parses raw into an AnalysisResult. Malformed JSON yields a
// *insight.ResponseParseError; a malformed chart table yields a
// *insight.ChartDataError.
func Analysis(raw string) (*insight.AnalysisResult, error) {
	var w wireAnalysis
	if err := decodeModelJSON(raw, &w); err != nil {
		return nil, &insight.ResponseParseError{Title: "Malformed analysis response", Err: err}
	}
	if len(w.Findings) == 0 {
		return nil, &insight.ResponseParseError{Title: "Empty analysis response", Err: errors.New("no findings")}
	}
	out := &insight.AnalysisResult{
		InspectionSummary:  w.InspectionSummary.toInsight(),
		Findings:           make([]insight.Finding, 0, len(w.Findings)),
		SuggestedFollowups: cleanStrings(w.SuggestedFollowups),
	}
	if len(out.SuggestedFollowups) > MaxFollowups {
		out.SuggestedFollowups = out.SuggestedFollowups[:MaxFollowups]
	}
	for i, f := range w.Findings {
		plot, err := normalizePlot(i, f.Plot)
		if err != nil {
			return nil, err
		}
		out.Findings = append(out.Findings, insight.Finding{Insight: strings.TrimSpace(f.Insight), Plot: plot})
	}
	return out, nil
}

// PreAnalysis parses the quick-recognition response.
func PreAnalysis(raw string) (*insight.PreAnalysisResult, error) {
	var w wirePreAnalysis
	if err := decodeModelJSON(raw, &w); err != nil {
		return nil, &insight.ResponseParseError{Title: "Malformed pre-analysis response", Err: err}
	}
	out := &insight.PreAnalysisResult{
		Summary:            strings.TrimSpace(w.Summary),
		SuggestedQuestions: cleanStrings(w.SuggestedQuestions),
	}
	if out.Summary == "" && len(out.SuggestedQuestions) == 0 {
		return nil, &insight.ResponseParseError{Title: "Empty pre-analysis response", Err: errors.New("no summary or questions")}
	}
	return out, nil
}

// Summary parses a summarization response into the summary text.
func Summary(raw string) (string, error) {
	var w wireSummary
	if err := decodeModelJSON(raw, &w); err != nil {
		return "", &insight.ResponseParseError{Title: "Malformed summary response", Err: err}
	}
	return strings.TrimSpace(w.Summary), nil
}

func normalizePlot(i int, p *wirePlot) (*insight.PlotSpec, error) {
	if p == nil {
		return nil, nil
	}
	ct := strings.TrimSpace(p.ChartType)
	if ct == "" && isBlankData(p.Data) {
		// strict schemas force a plot object onto every finding; an empty one means none
		return nil, nil
	}
	chart, ok := insight.ParseChartType(ct)
	if !ok {
		return nil, &insight.ChartDataError{Finding: i, Reason: fmt.Sprintf("unknown chart type %q", p.ChartType)}
	}
	rows, err := decodeRows(p.Data)
	if err != nil {
		return nil, &insight.ChartDataError{Finding: i, Reason: err.Error()}
	}
	keys := insight.DataKeys{
		X:     strings.TrimSpace(p.DataKeys.X),
		Name:  strings.TrimSpace(p.DataKeys.Name),
		Value: strings.TrimSpace(p.DataKeys.Value),
	}
	for _, y := range p.DataKeys.Y {
		if y = strings.TrimSpace(y); y != "" {
			keys.Y = append(keys.Y, y)
		}
	}
	for r, row := range rows {
		for _, k := range keys.Referenced() {
			if _, ok := row[k]; !ok {
				return nil, &insight.ChartDataError{Finding: i, Reason: fmt.Sprintf("dataKeys references %q, missing from row %d", k, r)}
			}
		}
	}
	return &insight.PlotSpec{
		ChartType:   chart,
		Title:       strings.TrimSpace(p.Title),
		Description: strings.TrimSpace(p.Description),
		Data:        rows,
		DataKeys:    keys,
	}, nil
}

func isBlankData(b tableData) bool {
	s := string(bytes.TrimSpace(b))
	return s == "" || s == "null" || s == `""` || s == "[]"
}

// decodeRows interprets plot.data. Absent, null, non-array or header-only
// tables give an empty, non-nil row slice.
func decodeRows(raw tableData) ([]insight.Row, error) {
	rows := []insight.Row{}
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return rows, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("data is not valid JSON: %w", err)
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return rows, nil
		}
		v = nil
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("data string is not valid JSON: %w", err)
		}
	}
	table, ok := v.([]any)
	if !ok || len(table) == 0 {
		return rows, nil
	}

	if _, isObj := table[0].(map[string]any); isObj {
		for r, e := range table {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("row %d is not an object", r)
			}
			rows = append(rows, insight.Row(m))
		}
		return rows, nil
	}

	if len(table) < 2 {
		return rows, nil
	}
	headerCells, ok := table[0].([]any)
	if !ok {
		return nil, errors.New("header row is not an array")
	}
	header := make([]string, len(headerCells))
	seen := make(map[string]bool, len(headerCells))
	for j, h := range headerCells {
		name, ok := h.(string)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("header cell %d is not a non-empty string", j)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate header %q", name)
		}
		seen[name] = true
		header[j] = name
	}
	for r, e := range table[1:] {
		cells, ok := e.([]any)
		if !ok {
			return nil, fmt.Errorf("row %d is not an array", r+1)
		}
		row := make(insight.Row, len(header))
		for j, name := range header {
			if j < len(cells) {
				row[name] = Coerce(cells[j])
			} else {
				row[name] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Coerce applies the per-cell numeric rule: a string whose trimmed text is
// non-empty and parses as a finite number becomes that number. Every other
// value is returned unchanged.
func Coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	t := strings.TrimSpace(s)
	if t == "" {
		return v
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return v
	}
	return f
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// decodeModelJSON unmarshals JSON from a model response, tolerating text or
// code fences around the first top-level object.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}

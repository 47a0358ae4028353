package cmd

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

func sampleResult() *insight.AnalysisResult {
	return &insight.AnalysisResult{
		Findings: []insight.Finding{
			{Insight: "Sales rose in February.", Plot: &insight.PlotSpec{
				ChartType: insight.ChartLine,
				Title:     "Sales by month",
				Data: []insight.Row{
					{"Month": "Jan", "Sales": 150.0},
					{"Month": "Feb", "Sales": nil, "Note": "peak"},
				},
				DataKeys: insight.DataKeys{X: "Month", Y: []string{"Sales"}},
			}},
			{Insight: "March was flat."},
		},
		SuggestedFollowups: []string{"Why did Feb peak?"},
	}
}

func TestRenderResultPrintsFindingsAndPlotTable(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, sampleResult())
	out := buf.String()
	for _, want := range []string{
		"• Sales rose in February.",
		"📊 [line] Sales by month",
		"Month", "Jan", "150", "peak",
		"• March was flat.",
		"You could also ask:", "- Why did Feb peak?",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPlotColumnsPutsDataKeysFirst(t *testing.T) {
	p := sampleResult().Findings[0].Plot
	got := plotColumns(p)
	want := []string{"Month", "Sales", "Note"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("plotColumns = %v want %v", got, want)
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[string]any{"-": nil, "1.5": 1.5, "200": 200.0, "true": true, "x": "x"}
	for want, v := range cases {
		if got := formatValue(v); got != want {
			t.Errorf("formatValue(%v) = %q want %q", v, got, want)
		}
	}
}

func TestStreamPrinterPrintsEachFindingOnce(t *testing.T) {
	var buf bytes.Buffer
	p := &streamPrinter{w: &buf}
	full := sampleResult()

	p.partial(&insight.AnalysisResult{Findings: []insight.Finding{{Insight: "Sales rose"}}})
	if buf.Len() != 0 {
		t.Fatalf("last finding of a partial must wait: %q", buf.String())
	}
	p.partial(&insight.AnalysisResult{Findings: []insight.Finding{full.Findings[0], {Insight: "March"}}})
	if !strings.Contains(buf.String(), "Sales rose in February.") {
		t.Fatalf("first finding not printed: %q", buf.String())
	}
	p.final(full)
	out := buf.String()
	if strings.Count(out, "• ") != 2 || !strings.Contains(out, "• March was flat.") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestPickSuggestion(t *testing.T) {
	pre := &insight.PreAnalysisResult{SuggestedQuestions: []string{"a?", "b?"}}
	cases := map[string]string{"1": "a?", " 2 ": "b?", "3": "3", "why?": "why?"}
	for in, want := range cases {
		if got := pickSuggestion(in, pre); got != want {
			t.Errorf("pickSuggestion(%q) = %q want %q", in, got, want)
		}
	}
	if got := pickSuggestion("1", nil); got != "1" {
		t.Fatalf("nil pre-analysis: %q", got)
	}
}

func TestMask(t *testing.T) {
	if mask("") != "(unset)" || mask("abc") != "******" {
		t.Fatalf("short values should be hidden")
	}
	if got := mask("sk-abcdef123"); got != "sk-…123" {
		t.Fatalf("mask = %q", got)
	}
}

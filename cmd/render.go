package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

// maxPlotRows caps how many chart rows are printed as a table.
const maxPlotRows = 12

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func renderPreAnalysis(w io.Writer, pre *insight.PreAnalysisResult) {
	if pre == nil {
		return
	}
	fmt.Fprintln(w, "\n=== Quick look ===")
	fmt.Fprintln(w, pre.Summary)
	if len(pre.SuggestedQuestions) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSuggested questions:")
	for i, q := range pre.SuggestedQuestions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, q)
	}
}

func renderResult(w io.Writer, res *insight.AnalysisResult) {
	if res == nil {
		return
	}
	if is := res.InspectionSummary; is != nil && is.RowCount+is.ColumnCount > 0 {
		fmt.Fprintf(w, "(%d rows, %d columns)\n", is.RowCount, is.ColumnCount)
	}
	for _, f := range res.Findings {
		renderFinding(w, f)
	}
	renderFollowups(w, res.SuggestedFollowups)
}

func renderFinding(w io.Writer, f insight.Finding) {
	fmt.Fprintf(w, "• %s\n", strings.TrimSpace(f.Insight))
	if f.Plot != nil {
		renderPlot(w, f.Plot)
	}
}

func renderFollowups(w io.Writer, qs []string) {
	if len(qs) == 0 {
		return
	}
	fmt.Fprintln(w, "\nYou could also ask:")
	for _, q := range qs {
		fmt.Fprintf(w, "  - %s\n", q)
	}
}

// streamPrinter prints findings as soon as a later one has started, so a
// printed finding is never revised by the rest of the stream.
type streamPrinter struct {
	w       io.Writer
	printed int
}

func (p *streamPrinter) partial(res *insight.AnalysisResult) {
	for p.printed < len(res.Findings)-1 {
		renderFinding(p.w, res.Findings[p.printed])
		p.printed++
	}
}

func (p *streamPrinter) final(res *insight.AnalysisResult) {
	if res == nil {
		return
	}
	for i := p.printed; i < len(res.Findings); i++ {
		renderFinding(p.w, res.Findings[i])
	}
	p.printed = len(res.Findings)
	renderFollowups(p.w, res.SuggestedFollowups)
}

func renderPlot(w io.Writer, p *insight.PlotSpec) {
	fmt.Fprintf(w, "  📊 [%s] %s\n", p.ChartType, p.Title)
	if p.Description != "" {
		fmt.Fprintf(w, "     %s\n", p.Description)
	}
	cols := plotColumns(p)
	if len(cols) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "     %s\n", strings.Join(cols, "\t"))
	for i, row := range p.Data {
		if i == maxPlotRows {
			fmt.Fprintf(tw, "     … %d more rows\n", len(p.Data)-maxPlotRows)
			break
		}
		vals := make([]string, len(cols))
		for j, c := range cols {
			vals[j] = formatValue(row[c])
		}
		fmt.Fprintf(tw, "     %s\n", strings.Join(vals, "\t"))
	}
	_ = tw.Flush()
}

// plotColumns orders the data keys first, then any other row keys by name.
func plotColumns(p *insight.PlotSpec) []string {
	seen := map[string]bool{}
	var cols []string
	for _, k := range p.DataKeys.Referenced() {
		if !seen[k] {
			seen[k] = true
			cols = append(cols, k)
		}
	}
	var extra []string
	for _, row := range p.Data {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func renderTurns(w io.Writer, turns []insight.ConversationTurn) {
	for _, t := range turns {
		ts := t.CreatedAt.Format("2006-01-02 15:04")
		switch {
		case t.Sender == insight.SenderUser:
			fmt.Fprintf(w, "\n[%s] you> %s\n", ts, t.Text)
		case t.IsError:
			fmt.Fprintf(w, "[%s] ✗ %s\n", ts, t.Text)
		case t.AnalysisResult != nil:
			fmt.Fprintf(w, "[%s] analyst>\n", ts)
			renderResult(w, t.AnalysisResult)
		default:
			fmt.Fprintf(w, "[%s] analyst> %s\n", ts, t.Text)
		}
	}
}

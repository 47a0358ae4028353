package profile

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

// Markdown renders a compact, LLM-friendly description of the profile.
func Markdown(name string, p *insight.DatasetProfile) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", p.RowCount))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", p.ColumnCount))

	b.WriteString("[SCHEMA]\n")
	for _, c := range p.Columns {
		total := c.NonNull + c.MissingCount
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.MissingCount) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.InferredType, c.NonNull, missPct))
		if c.IsNumeric() && c.Min != nil {
			b.WriteString(fmt.Sprintf(" min %.4g, max %.4g, mean %.4g", *c.Min, *c.Max, *c.Mean))
		} else if len(c.Examples) > 0 {
			b.WriteString("; e.g. ")
			for i, ex := range c.Examples {
				if i > 0 {
					b.WriteString(" | ")
				}
				b.WriteString(safeVal(ex))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

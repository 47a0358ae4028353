package normalize

import (
	"encoding/json"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

// maxRepairCandidates bounds the work done per partial parse.
const maxRepairCandidates = 64

type cutPoint struct {
	pos   int
	stack []byte
}

// Repair turns a truncated JSON object into a valid one by closing an open
// string and every open container, backing off to the last complete element
// when the tail cannot be closed as is.
func Repair(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	s := text[start:]

	var (
		stack []byte
		inStr bool
		esc   bool
		cuts  []cutPoint
	)
	snapshot := func(pos int) {
		cuts = append(cuts, cutPoint{pos: pos, stack: append([]byte(nil), stack...)})
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, c)
			snapshot(i + 1)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				out := s[:i+1]
				return out, json.Valid([]byte(out))
			}
			snapshot(i + 1)
		case ',':
			snapshot(i)
		}
	}

	tail := s
	if inStr {
		if esc {
			tail = tail[:len(tail)-1]
		}
		tail += `"`
	}
	if cand := tail + closers(stack); json.Valid([]byte(cand)) {
		return cand, true
	}
	tried := 0
	for k := len(cuts) - 1; k >= 0 && tried < maxRepairCandidates; k-- {
		tried++
		cand := strings.TrimRight(s[:cuts[k].pos], " \t\r\n") + closers(cuts[k].stack)
		if json.Valid([]byte(cand)) {
			return cand, true
		}
	}
	return "", false
}

func closers(stack []byte) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Partial builds a display-only AnalysisResult from streamed text that may
// be cut off anywhere. Plots that cannot be normalized yet are dropped; the
// final text must still go through Analysis.
func Partial(text string) (*insight.AnalysisResult, bool) {
	fixed, ok := Repair(text)
	if !ok {
		return nil, false
	}
	var w wireAnalysis
	if err := json.Unmarshal([]byte(fixed), &w); err != nil {
		return nil, false
	}
	out := &insight.AnalysisResult{
		InspectionSummary:  w.InspectionSummary.toInsight(),
		SuggestedFollowups: cleanStrings(w.SuggestedFollowups),
	}
	for i, f := range w.Findings {
		plot, err := normalizePlot(i, f.Plot)
		if err != nil {
			plot = nil
		}
		ins := strings.TrimSpace(f.Insight)
		if ins == "" && plot == nil {
			continue
		}
		out.Findings = append(out.Findings, insight.Finding{Insight: ins, Plot: plot})
	}
	return out, true
}

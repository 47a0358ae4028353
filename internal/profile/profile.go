// Package profile infers column types and basic statistics from raw CSV text.
//
// Parsing is intentionally simple: lines are split on commas and double
// quotes are stripped. Quoted fields containing commas are not supported.
package profile

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

const (
	maxExamples    = 3
	maxUniqueTrack = 10000
)

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	isoDatePrefix  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// colAcc accumulates per-column observations in a single pass.
type colAcc struct {
	name    string
	nonNil  int
	miss    int
	allInt  bool
	allNum  bool
	allDate bool

	n    int
	mean float64
	min  float64
	max  float64

	uniq     map[string]struct{}
	examples []string
}

// Profile parses csvText and returns a DatasetProfile. It fails with a
// *insight.DataFormatError when the text has no header or no data rows.
func Profile(csvText string) (*insight.DatasetProfile, error) {
	lines := dataLines(csvText)
	if len(lines) == 0 {
		return nil, &insight.DataFormatError{Reason: "file is empty"}
	}
	header := splitLine(lines[0])
	rows := lines[1:]
	if len(rows) == 0 {
		return nil, &insight.DataFormatError{Reason: "no data rows"}
	}

	cols := make([]*colAcc, len(header))
	for i, h := range header {
		name := h
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		cols[i] = &colAcc{
			name:    name,
			allInt:  true,
			allNum:  true,
			allDate: true,
			min:     math.Inf(1),
			max:     math.Inf(-1),
			uniq:    make(map[string]struct{}),
		}
	}

	for _, line := range rows {
		rec := splitLine(line)
		for j, c := range cols {
			v := ""
			if j < len(rec) {
				v = rec[j]
			}
			if v == "" {
				c.miss++
				continue
			}
			c.observe(v)
		}
	}

	p := &insight.DatasetProfile{
		RowCount:    len(rows),
		ColumnCount: len(cols),
		Columns:     make([]insight.ColumnProfile, 0, len(cols)),
	}
	for _, c := range cols {
		p.Columns = append(p.Columns, c.summary())
	}
	return p, nil
}

func (c *colAcc) observe(v string) {
	c.nonNil++
	if len(c.uniq) < maxUniqueTrack {
		c.uniq[v] = struct{}{}
	}
	if len(c.examples) < maxExamples {
		c.examples = append(c.examples, v)
	}
	if !integerPattern.MatchString(v) {
		c.allInt = false
	}
	if x, ok := parseNumber(v); ok {
		c.n++
		if x < c.min {
			c.min = x
		}
		if x > c.max {
			c.max = x
		}
		c.mean += (x - c.mean) / float64(c.n)
	} else {
		c.allNum = false
		c.allInt = false
	}
	if c.allDate && !looksLikeDate(v) {
		c.allDate = false
	}
}

func (c *colAcc) summary() insight.ColumnProfile {
	s := insight.ColumnProfile{
		Name:         c.name,
		MissingCount: c.miss,
		NonNull:      c.nonNil,
		Unique:       len(c.uniq),
		Examples:     c.examples,
	}
	switch {
	case c.nonNil == 0:
		s.InferredType = insight.TypeEmpty
	case c.allInt:
		s.InferredType = insight.TypeInteger
	case c.allNum:
		s.InferredType = insight.TypeFloat
	case c.allDate:
		s.InferredType = insight.TypeDate
	default:
		s.InferredType = insight.TypeString
	}
	if s.IsNumeric() {
		lo, hi, mean := c.min, c.max, c.mean
		s.Min, s.Max, s.Mean = &lo, &hi, &mean
	}
	return s
}

// dataLines returns the non-blank lines of text with line endings removed.
func dataLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func splitLine(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.ReplaceAll(p, `"`, ""))
	}
	return parts
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"Jan 2, 2006", "2 Jan 2006", "January 2, 2006",
}

func looksLikeDate(s string) bool {
	if isoDatePrefix.MatchString(s) {
		return true
	}
	for _, l := range dateLayouts {
		if _, err := time.Parse(l, s); err == nil {
			return true
		}
	}
	return false
}

// Sample returns the header line plus the first n data lines of csvText.
// n <= 0 returns the header only.
func Sample(csvText string, n int) string {
	lines := dataLines(csvText)
	if len(lines) == 0 {
		return ""
	}
	if n < 0 {
		n = 0
	}
	end := 1 + n
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[:end], "\n")
}

// Header returns the parsed header cells of csvText.
func Header(csvText string) []string {
	lines := dataLines(csvText)
	if len(lines) == 0 {
		return nil
	}
	return splitLine(lines[0])
}

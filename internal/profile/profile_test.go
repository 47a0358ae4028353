package profile

import (
	"errors"
	"strings"
	"testing"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

func TestProfileInfersTypes(t *testing.T) {
	csv := strings.Join([]string{
		"id,price,note,day,blank",
		"1,1.5,a,2024-01-01,",
		"2,2,b,2024-02-01,",
		"3,,\"c\",2024-03-01T00:00:00Z,",
	}, "\n")
	p, err := Profile(csv)
	if err != nil {
		t.Fatalf("Profile error: %v", err)
	}
	if p.RowCount != 3 || p.ColumnCount != 5 {
		t.Fatalf("unexpected shape: rows=%d cols=%d", p.RowCount, p.ColumnCount)
	}
	want := map[string]insight.ColumnType{
		"id":    insight.TypeInteger,
		"price": insight.TypeFloat,
		"note":  insight.TypeString,
		"day":   insight.TypeDate,
		"blank": insight.TypeEmpty,
	}
	for _, c := range p.Columns {
		if c.InferredType != want[c.Name] {
			t.Errorf("column %s: got %s want %s", c.Name, c.InferredType, want[c.Name])
		}
	}
	if p.Columns[1].MissingCount != 1 || p.Columns[4].MissingCount != 3 {
		t.Fatalf("missing counts wrong: %+v", p.Columns)
	}
	if p.Columns[0].Min == nil || *p.Columns[0].Min != 1 || *p.Columns[0].Max != 3 || *p.Columns[0].Mean != 2 {
		t.Fatalf("integer stats wrong: %+v", p.Columns[0])
	}
	if p.Columns[2].Min != nil {
		t.Fatalf("string column should carry no numeric stats")
	}
	if got := p.Columns[2].Examples; len(got) != 3 || got[2] != "c" {
		t.Fatalf("quotes should be stripped from examples: %v", got)
	}
}

func TestProfileSingleColumnCases(t *testing.T) {
	cases := []struct {
		vals []string
		want insight.ColumnType
	}{
		{[]string{"1", "2", "3"}, insight.TypeInteger},
		{[]string{"1.5", "2"}, insight.TypeFloat},
		{[]string{"", "", ""}, insight.TypeEmpty},
		{[]string{"2024-01-01", "2024-02-01"}, insight.TypeDate},
		{[]string{"a", "b"}, insight.TypeString},
		{[]string{"007", "-12", "+3"}, insight.TypeInteger},
		{[]string{"1", "2024-01-01"}, insight.TypeString},
		{[]string{"NaN", "1"}, insight.TypeString},
	}
	for _, c := range cases {
		csv := "v\n" + strings.Join(c.vals, "\n")
		if allBlank(c.vals) {
			// blank lines are skipped, so keep rows by adding a second column
			csv = "v,k\n" + strings.Repeat(",x\n", len(c.vals))
		}
		p, err := Profile(csv)
		if err != nil {
			t.Fatalf("%v: %v", c.vals, err)
		}
		if got := p.Columns[0].InferredType; got != c.want {
			t.Errorf("%v: got %s want %s", c.vals, got, c.want)
		}
	}
}

func allBlank(vals []string) bool {
	for _, v := range vals {
		if v != "" {
			return false
		}
	}
	return true
}

func TestProfileMissingMatchesBlankCells(t *testing.T) {
	csv := "a,b,c\n1,,x\n,2\n3,4,\n\n,,\n"
	p, err := Profile(csv)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(p.Columns) != 3 {
		t.Fatalf("columns = %d", len(p.Columns))
	}
	total := 0
	for _, c := range p.Columns {
		total += c.MissingCount
	}
	// row2 misses a and c, row1 misses b, row3 misses c, row4 misses all three
	if total != 7 {
		t.Fatalf("missing total = %d, want 7", total)
	}
	if p.RowCount != 4 {
		t.Fatalf("rows = %d, blank line should be skipped", p.RowCount)
	}
}

func TestProfileZeroRowsIsDataFormatError(t *testing.T) {
	for _, in := range []string{"", "a,b\n", "\n\n"} {
		_, err := Profile(in)
		var dfe *insight.DataFormatError
		if !errors.As(err, &dfe) {
			t.Fatalf("Profile(%q) err = %v, want DataFormatError", in, err)
		}
	}
}

func TestSampleAndHeader(t *testing.T) {
	csv := "x,y\r\n1,2\r\n3,4\r\n5,6\r\n"
	if got := Sample(csv, 2); got != "x,y\n1,2\n3,4" {
		t.Fatalf("Sample = %q", got)
	}
	if got := Sample(csv, 99); !strings.HasSuffix(got, "5,6") {
		t.Fatalf("Sample overflow = %q", got)
	}
	if got := Sample(csv, 0); got != "x,y" {
		t.Fatalf("Sample(0) = %q", got)
	}
	h := Header(csv)
	if len(h) != 2 || h[1] != "y" {
		t.Fatalf("Header = %v", h)
	}
}

func TestMarkdownSections(t *testing.T) {
	p, err := Profile("region,sales\nnorth,10\nsouth,20\n")
	if err != nil {
		t.Fatal(err)
	}
	md := Markdown("sales.csv", p)
	for _, want := range []string{"[DATASET SUMMARY]", "File: sales.csv", "Rows: 2", "[SCHEMA]", "- sales: integer", "- region: string", "e.g. north | south"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

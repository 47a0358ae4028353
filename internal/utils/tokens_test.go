package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/datachat-cli/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"tiny", "hi", 1},
		{"simple", "hello world", 2},
		{"long", strings.Repeat("a", 4000), 1000},
	}
	for _, c := range cases {
		if got := utils.CountTokens(c.in); got != c.want {
			t.Errorf("%s: got %d want %d", c.name, got, c.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	out, cut := utils.TruncateRunes("héllo", 3)
	if out != "hél" || !cut {
		t.Fatalf("got %q cut=%v", out, cut)
	}
	out, cut = utils.TruncateRunes("abc", 10)
	if out != "abc" || cut {
		t.Fatalf("got %q cut=%v", out, cut)
	}
	if out, cut = utils.TruncateRunes("abc", 0); out != "" || !cut {
		t.Fatalf("zero limit: got %q cut=%v", out, cut)
	}
}

func TestSafeWriteFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")
	b, err := utils.PrettyJSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(got), `"a": 1`) {
		t.Fatalf("read back %q err=%v", got, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestSafeFileName(t *testing.T) {
	for in, want := range map[string]string{
		"transcript:sales 2024.csv": "transcript_sales_2024.csv",
		"../etc/passwd":             "etc_passwd",
		"  ":                        "unnamed",
	} {
		if got := utils.SafeFileName(in); got != want {
			t.Errorf("SafeFileName(%q) = %q want %q", in, got, want)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.RetryMaxAttempts != 3 || c.RetryBaseDelay() != time.Second || c.RetryJitter() != time.Second {
		t.Fatalf("retry defaults: %+v", c)
	}
	if c.HistoryThresholdChars != 6000 || c.RecentTurns != 4 || c.SampleLines != 100 || c.PreviewLines != 20 {
		t.Fatalf("memory defaults: %+v", c)
	}
	if c.DefaultProvider != "openrouter" || c.StoreDriver != "file" {
		t.Fatalf("provider/store defaults: %+v", c)
	}
}

func TestSaveLoadRoundTripAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range map[string]string{"recent_turns": "6", "store_driver": "SQLite", "temperature": "0.1"} {
		if err := c.Set(k, v); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if err := Save(c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Setenv("DATACHAT_SAMPLE_LINES", "50")
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.RecentTurns != 6 || got.StoreDriver != "sqlite" || got.Temperature != 0.1 {
		t.Fatalf("reloaded: %+v", got)
	}
	if got.SampleLines != 50 {
		t.Fatalf("env override ignored: %d", got.SampleLines)
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("recent_turns: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSetValidates(t *testing.T) {
	var c Global
	for k, v := range map[string]string{
		"recent_turns": "0",
		"temperature":  "hot",
		"store_driver": "redis",
		"nope":         "1",
	} {
		if err := c.Set(k, v); err == nil {
			t.Errorf("Set(%s, %s) should fail", k, v)
		}
	}
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	var c Global
	if got := c.APIKeyFor("openrouter"); got != "or-key" {
		t.Fatalf("openrouter = %q", got)
	}
	if got := c.APIKeyFor("gemini"); got != "g-key" {
		t.Fatalf("gemini = %q", got)
	}
	if got := c.APIKeyFor("ollama"); got != "" {
		t.Fatalf("ollama = %q", got)
	}
	c.APIKey = "explicit"
	if got := c.APIKeyFor("openai"); got != "explicit" {
		t.Fatalf("explicit = %q", got)
	}
}

func TestKeysCoverSet(t *testing.T) {
	var c Global
	for _, k := range Keys() {
		if err := c.Set(k, "1"); err != nil && err.Error() == "unknown key: "+k {
			t.Errorf("key %s not settable", k)
		}
	}
}

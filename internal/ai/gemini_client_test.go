package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

func geminiBody(text string) map[string]any {
	return map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 9, "candidatesTokenCount": 3, "totalTokenCount": 12},
		"responseId":    "gem_1",
	}
}

func TestGeminiGenerateSendsResponseSchema(t *testing.T) {
	var body map[string]any
	var key string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			http.NotFound(w, r)
			return
		}
		key = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiBody(`{"summary":"hi"}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("g-key", srv.URL, 2*time.Second)
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model:    "gemini-2.0-flash",
		Messages: []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hello"}},
		Schema:   MustSchemaFor[sampleShape]("sample", "", false),
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != `{"summary":"hi"}` || resp.ID != "gem_1" || resp.Usage.TotalTokens != 12 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if key != "g-key" {
		t.Fatalf("api key header = %q", key)
	}
	cfg, _ := body["generationConfig"].(map[string]any)
	if cfg["responseMimeType"] != "application/json" {
		t.Fatalf("generationConfig = %v", cfg)
	}
	schema, _ := cfg["responseSchema"].(map[string]any)
	if schema["type"] != "OBJECT" {
		t.Fatalf("responseSchema = %v", schema)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatalf("system message should become systemInstruction: %v", body)
	}
}

func TestGeminiStreamDeliversDeltas(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{`{"summ`, `ary":"hi"}`} {
			b, _ := json.Marshal(geminiBody(part))
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
	}))
	defer srv.Close()

	c := NewGeminiClient("g-key", srv.URL, 2*time.Second)
	var sb strings.Builder
	err := c.GenerateStream(context.Background(), GenerateRequest{Model: "gemini-2.0-flash", Messages: UserPrompt("hi")}, func(d string) {
		sb.WriteString(d)
	})
	if err != nil {
		t.Fatalf("GenerateStream error: %v", err)
	}
	if sb.String() != `{"summary":"hi"}` {
		t.Fatalf("deltas = %q", sb.String())
	}
}

func TestGeminiErrorsAreClassified(t *testing.T) {
	cases := []struct {
		status int
		code   string
		kind   insight.ErrorKind
	}{
		{http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", insight.KindQuota},
		{http.StatusUnauthorized, "UNAUTHENTICATED", insight.KindInvalidKey},
		{http.StatusBadRequest, "INVALID_ARGUMENT", insight.KindOther},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": tc.status, "message": "nope", "status": tc.code}})
			}))
			defer srv.Close()

			c := NewGeminiClient("g-key", srv.URL, 2*time.Second)
			_, err := c.Generate(context.Background(), GenerateRequest{Model: "gemini-2.0-flash", Messages: UserPrompt("hi")})
			if err == nil {
				t.Fatalf("expected error")
			}
			if Kind(err) != tc.kind {
				t.Fatalf("Kind = %s want %s (%v)", Kind(err), tc.kind, err)
			}
		})
	}
}

func TestGeminiMissingKey(t *testing.T) {
	c := NewGeminiClient("", "", time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "gemini-2.0-flash", Messages: UserPrompt("hi")})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v", err)
	}
}

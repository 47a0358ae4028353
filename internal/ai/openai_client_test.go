package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

func responsesBody(text string) map[string]any {
	return map[string]any{
		"id":         "resp_1",
		"object":     "response",
		"created_at": 1700000000,
		"status":     "completed",
		"model":      "gpt-4o-mini",
		"output": []any{map[string]any{
			"type":   "message",
			"id":     "msg_1",
			"status": "completed",
			"role":   "assistant",
			"content": []any{map[string]any{
				"type":        "output_text",
				"text":        text,
				"annotations": []any{},
			}},
		}},
		"usage": map[string]any{"input_tokens": 12, "output_tokens": 4, "total_tokens": 16},
	}
}

func TestOpenAIGenerateSendsStrictSchema(t *testing.T) {
	var body map[string]any
	var auth string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/responses" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(responsesBody(`{"summary":"hi","tags":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL, 2*time.Second)
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model:       "gpt-4o-mini",
		Messages:    []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hello"}},
		Schema:      MustSchemaFor[sampleShape]("sample", "a sample", true),
		Temperature: 0.2,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != `{"summary":"hi","tags":[]}` || resp.ID != "resp_1" || resp.Usage.TotalTokens != 16 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("authorization header = %q", auth)
	}
	if body["instructions"] != "be brief" || body["max_output_tokens"] != 64.0 {
		t.Fatalf("request body: %v", body)
	}
	text, _ := body["text"].(map[string]any)
	format, _ := text["format"].(map[string]any)
	if format["type"] != "json_schema" || format["name"] != "sample" || format["strict"] != true {
		t.Fatalf("text.format = %v", format)
	}
	schema, _ := format["schema"].(map[string]any)
	required, _ := schema["required"].([]any)
	if len(required) != 2 {
		t.Fatalf("strict schema should require every property, got %v", schema["required"])
	}
}

func TestOpenAIErrorsAreClassified(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   string
		kind   insight.ErrorKind
		check  func(error) bool
	}{
		{"invalid key", http.StatusUnauthorized, "invalid_api_key", insight.KindInvalidKey, func(err error) bool {
			var ae *AuthError
			return errors.As(err, &ae)
		}},
		{"rate limited", http.StatusTooManyRequests, "insufficient_quota", insight.KindQuota, func(err error) bool {
			var rl *RateLimitError
			return errors.As(err, &rl) && rl.RetryAfter == 3*time.Second
		}},
		{"server", http.StatusInternalServerError, "server_error", insight.KindOther, func(err error) bool {
			var se *ServerError
			return errors.As(err, &se)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "3")
				w.Header().Set("X-Request-Id", "req_42")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "nope", "type": tc.code, "code": tc.code}})
			}))
			defer srv.Close()

			c := NewOpenAIClient("sk-test", srv.URL, 2*time.Second)
			_, err := c.Generate(context.Background(), GenerateRequest{Model: "gpt-4o-mini", Messages: UserPrompt("hi")})
			if !tc.check(err) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			if Kind(err) != tc.kind {
				t.Fatalf("Kind = %s want %s", Kind(err), tc.kind)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Fatalf("SDK retries must be off, calls=%d", n)
			}
		})
	}
}

func TestOpenAIMissingKeyMakesNoRequest(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewOpenAIClient("", srv.URL, time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "gpt-4o-mini", Messages: UserPrompt("hi")})
	if !errors.Is(err, ErrMissingAPIKey) || Kind(err) != insight.KindInvalidKey {
		t.Fatalf("err = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("no request expected, calls=%d", n)
	}
}

func TestOpenAIUnreachable(t *testing.T) {
	c := NewOpenAIClient("sk-test", "http://127.0.0.1:1", time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "gpt-4o-mini", Messages: UserPrompt("hi")})
	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T %v", err, err)
	}
}

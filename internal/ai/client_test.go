package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

type sampleShape struct {
	Summary string   `json:"summary" jsonschema:"required"`
	Tags    []string `json:"tags,omitempty"`
}

func TestGenerateSendsSchemaAndMakesOneAttempt(t *testing.T) {
	var calls int32
	var got map[string]any
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&calls, 1)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: `{"summary":"ok"}`}}}})
	}))
	defer srv.Close()

	schema, err := SchemaFor[sampleShape]("sample", "test schema", true)
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	c := NewClientWithBaseURL("test", 2*time.Second, srv.URL)
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: UserPrompt("hi"), Schema: schema})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text() != `{"summary":"ok"}` {
		t.Fatalf("unexpected text %q", resp.Text())
	}
	rf, ok := got["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_schema" {
		t.Fatalf("response_format missing: %v", got)
	}
	js := rf["json_schema"].(map[string]any)
	if js["name"] != "sample" || js["strict"] != true {
		t.Fatalf("json_schema header wrong: %v", js)
	}
	req := js["schema"].(map[string]any)["required"].([]any)
	if len(req) != 2 {
		t.Fatalf("strict schema should require every property, got %v", req)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d", n)
	}
}

func TestGenerate429IsRateLimitWithoutRetry(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited", "code": 429}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: UserPrompt("hi")})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T %v", err, err)
	}
	if rl.RetryAfter != 7*time.Second || rl.Code != "429" {
		t.Fatalf("unexpected rate limit detail: %+v", rl)
	}
	if Kind(err) != insight.KindQuota {
		t.Fatalf("Kind = %s", Kind(err))
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("runtime must not retry on its own, calls=%d", n)
	}
}

func TestErrorIncludesRequestID(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: UserPrompt("hi")})
	var br *BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}
	if !strings.Contains(err.Error(), "req_test_123") {
		t.Fatalf("expected request id in error, got: %v", err)
	}
	if Kind(err) != insight.KindOther {
		t.Fatalf("Kind = %s", Kind(err))
	}
}

func TestMissingKeyIsInvalidKey(t *testing.T) {
	c := NewClient("", time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: UserPrompt("hi")})
	if !errors.Is(err, ErrMissingAPIKey) || Kind(err) != insight.KindInvalidKey {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestClassifyAPIError(t *testing.T) {
	cases := []struct {
		status int
		msg    string
		code   string
		kind   insight.ErrorKind
	}{
		{401, "no auth", "", insight.KindInvalidKey},
		{403, "forbidden", "", insight.KindInvalidKey},
		{400, "API key not valid. Please pass a valid API key.", "", insight.KindInvalidKey},
		{429, "slow down", "", insight.KindQuota},
		{402, "insufficient credits", "", insight.KindQuota},
		{400, "monthly quota reached", "", insight.KindQuota},
		{500, "boom", "", insight.KindOther},
		{404, "model not found", "", insight.KindOther},
	}
	for _, c := range cases {
		err := classifyAPIError(&APIError{StatusCode: c.status, Message: c.msg, Code: c.code}, nil)
		if got := Kind(err); got != c.kind {
			t.Errorf("status %d %q: kind %s want %s (%T)", c.status, c.msg, got, c.kind, err)
		}
	}
}

func TestApiErrorFromBodyShapes(t *testing.T) {
	e := apiErrorFromBody(400, []byte(`{"error":{"message":"nested","code":"c1"}}`), nil)
	if e.Message != "nested" || e.Code != "c1" {
		t.Fatalf("nested: %+v", e)
	}
	e = apiErrorFromBody(404, []byte(`{"error":"model 'x' not found"}`), nil)
	if e.Message != "model 'x' not found" {
		t.Fatalf("flat: %+v", e)
	}
	e = apiErrorFromBody(502, []byte("Bad Gateway"), nil)
	if e.Message != "Bad Gateway" {
		t.Fatalf("plain: %+v", e)
	}
}

func TestClassifyWrapsServiceError(t *testing.T) {
	err := Classify(&AuthError{APIError: &APIError{StatusCode: 401}})
	var se *insight.ServiceError
	if !errors.As(err, &se) || se.Kind != insight.KindInvalidKey {
		t.Fatalf("Classify = %v", err)
	}
	if again := Classify(err); again != err {
		t.Fatalf("Classify should not double wrap")
	}
	if Classify(nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestOpenRouterStreamParsesDeltas(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, ": OPENROUTER PROCESSING\n\n")
		fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello \"}}]}\n\n")
		fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n\n")
		fmt.Fprintf(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 5*time.Second, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var out string
	err := c.GenerateStream(ctx, GenerateRequest{Model: "test", Messages: UserPrompt("hi")}, func(d string) { out += d })
	if err != nil {
		t.Fatalf("GenerateStream error: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("unexpected stream accumulation: %q", out)
	}
}

func TestOpenRouterStreamMidStreamError(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"error\":{\"message\":\"Rate limit exceeded\",\"code\":429}}\n\n")
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 5*time.Second, srv.URL)
	err := c.GenerateStream(context.Background(), GenerateRequest{Model: "test", Messages: UserPrompt("hi")}, func(string) {})
	if Kind(err) != insight.KindQuota {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestRegistryKnowsProviders(t *testing.T) {
	for _, p := range []string{"openrouter", "ollama", "openai", "gemini", "OpenAI"} {
		rt, err := GetRuntime(p, RuntimeConfig{APIKey: "k"})
		if err != nil || rt == nil {
			t.Fatalf("GetRuntime(%s): %v", p, err)
		}
	}
	if _, ok := mustRuntime(t, "ollama").(StreamRuntime); !ok {
		t.Fatalf("ollama should stream")
	}
	if _, ok := mustRuntime(t, "openai").(StreamRuntime); ok {
		t.Fatalf("openai runtime is non-streaming")
	}
	if _, err := GetRuntime("nope", RuntimeConfig{}); err == nil || !strings.Contains(err.Error(), "openrouter") {
		t.Fatalf("unknown provider should list available ones, got %v", err)
	}
}

func mustRuntime(t *testing.T, name string) Runtime {
	t.Helper()
	rt, err := GetRuntime(name, RuntimeConfig{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	return rt
}

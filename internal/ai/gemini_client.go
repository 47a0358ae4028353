package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient calls Google's Gemini API through the genai SDK. The SDK
// client is created lazily on first use so construction never blocks.
type GeminiClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *genai.Client
}

// NewGeminiClient returns a client for the Gemini API. baseURL may be empty.
func NewGeminiClient(apiKey, baseURL string, httpTimeout time.Duration) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 120 * time.Second
	}
	return &GeminiClient{apiKey: apiKey, baseURL: strings.TrimSpace(baseURL), timeout: httpTimeout}
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	if c.client != nil {
		return c.client, nil
	}
	cl, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      c.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: c.timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.client = cl
	return cl, nil
}

func (c *GeminiClient) request(req GenerateRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := systemAndUser(req.Messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toGenaiSchema(req.Schema.Definition)
	}
	return contents, cfg
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	cl, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}
	contents, cfg := c.request(req)
	resp, err := cl.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, mapGenaiError(err)
	}
	out := &GenerateResponse{
		ID:      resp.ResponseID,
		Choices: []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (c *GeminiClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if req.Model == "" {
		return errors.New("model cannot be empty")
	}
	cl, err := c.sdk(ctx)
	if err != nil {
		return err
	}
	contents, cfg := c.request(req)
	for resp, err := range cl.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
		if err != nil {
			return mapGenaiError(err)
		}
		if t := resp.Text(); t != "" {
			onDelta(t)
		}
	}
	return nil
}

// mapGenaiError translates genai.APIError into the package's typed errors.
func mapGenaiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ge genai.APIError
	if errors.As(err, &ge) {
		return classifyGenai(ge.Code, ge.Status, ge.Message)
	}
	var gp *genai.APIError
	if errors.As(err, &gp) && gp != nil {
		return classifyGenai(gp.Code, gp.Status, gp.Message)
	}
	return &UnreachableError{Host: "generativelanguage.googleapis.com", Err: err}
}

func classifyGenai(code int, status, message string) error {
	apiErr := &APIError{StatusCode: code, Code: status, Message: message}
	if status == "RESOURCE_EXHAUSTED" {
		return &RateLimitError{APIError: apiErr}
	}
	if status == "UNAUTHENTICATED" || status == "PERMISSION_DENIED" {
		return &AuthError{APIError: apiErr}
	}
	return classifyAPIError(apiErr, nil)
}

// toGenaiSchema converts a reflected JSON schema map into the subset of
// OpenAPI schema that Gemini accepts.
func toGenaiSchema(def map[string]any) *genai.Schema {
	if def == nil {
		return nil
	}
	s := &genai.Schema{}
	if d, ok := def["description"].(string); ok {
		s.Description = d
	}
	typ, nullable := schemaType(def["type"])
	if nullable {
		s.Nullable = genai.Ptr(true)
	}
	switch typ {
	case "object":
		s.Type = genai.TypeObject
		if props, ok := def["properties"].(map[string]any); ok {
			s.Properties = make(map[string]*genai.Schema, len(props))
			names := make([]string, 0, len(props))
			for name, p := range props {
				if pm, ok := p.(map[string]any); ok {
					s.Properties[name] = toGenaiSchema(pm)
					names = append(names, name)
				}
			}
			sort.Strings(names)
			s.PropertyOrdering = names
		}
		s.Required = stringList(def["required"])
	case "array":
		s.Type = genai.TypeArray
		if items, ok := def["items"].(map[string]any); ok {
			s.Items = toGenaiSchema(items)
		}
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
		s.Enum = stringList(def["enum"])
	}
	return s
}

// schemaType reads "type", which may be a string or ["x","null"].
func schemaType(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, false
	case []any:
		var typ string
		nullable := false
		for _, e := range t {
			s, _ := e.(string)
			if s == "null" {
				nullable = true
			} else if typ == "" {
				typ = s
			}
		}
		return typ, nullable
	}
	return "", false
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

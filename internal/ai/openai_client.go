package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient calls the OpenAI Responses API with structured outputs.
// It does not stream; callers fall back to a single Generate.
type OpenAIClient struct {
	client openai.Client
	hasKey bool
}

// NewOpenAIClient builds a Responses client. SDK-level retries are disabled
// so retry policy stays with the caller. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL string, httpTimeout time.Duration) *OpenAIClient {
	if httpTimeout <= 0 {
		httpTimeout = 120 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: httpTimeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), hasKey: apiKey != ""}
}

func (c *OpenAIClient) params(req GenerateRequest) responses.ResponseNewParams {
	system, rest := systemAndUser(req.Messages)
	items := make([]responses.ResponseInputItemUnionParam, 0, len(rest))
	for _, m := range rest {
		role := responses.EasyInputMessageRoleUser
		if m.Role == "assistant" {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}
	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if s := req.Schema; s != nil {
		def := s.Definition
		if s.Strict {
			def = s.strictDefinition()
		}
		cfg := &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   s.Name,
			Schema: def,
			Strict: openai.Bool(s.Strict),
			Type:   "json_schema",
		}
		if s.Description != "" {
			cfg.Description = openai.String(s.Description)
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{OfJSONSchema: cfg},
		}
	}
	return params
}

func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if !c.hasKey {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	resp, err := c.client.Responses.New(ctx, c.params(req))
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	return &GenerateResponse{
		ID:      resp.ID,
		Choices: []Choice{{Message: Message{Role: "assistant", Content: resp.OutputText()}}},
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// mapOpenAIError translates SDK errors into the package's typed errors.
func mapOpenAIError(err error) error {
	var oe *openai.Error
	if !errors.As(err, &oe) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &UnreachableError{Host: "api.openai.com", Err: err}
	}
	apiErr := &APIError{StatusCode: oe.StatusCode, Code: oe.Code, Message: oe.Message}
	var header http.Header
	if oe.Response != nil {
		header = oe.Response.Header
		apiErr.RequestID = extractRequestID(header)
	}
	return classifyAPIError(apiErr, header)
}

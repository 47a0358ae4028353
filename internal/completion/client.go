// Package completion invokes a structured-completion runtime with a fixed
// output schema and a quota-only exponential backoff policy.
package completion

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat-cli/internal/ai"
	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/utils"
)

// MaxRetries is the default total number of attempts per call.
const MaxRetries = 3

const (
	defaultBaseDelay = time.Second
	defaultJitter    = time.Second
)

// ErrEmptyResponse is reported when the runtime answers with no text.
var ErrEmptyResponse = errors.New("empty response from completion service")

// Client wraps an ai.Runtime. Only quota-class failures are retried; the
// wait before attempt i+1 is baseDelay*2^i plus uniform jitter in [0, jitter).
type Client struct {
	rt          ai.Runtime
	model       string
	maxTokens   int
	maxAttempts int
	baseDelay   time.Duration
	jitter      time.Duration
	log         *zap.Logger

	sleep    func(ctx context.Context, d time.Duration) error
	jitterFn func(limit time.Duration) time.Duration
}

type Option func(*Client)

// WithRetry overrides the attempt cap and backoff parameters. Non-positive
// attempts keep the default; negative durations are treated as zero.
func WithRetry(maxAttempts int, baseDelay, jitter time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		c.baseDelay = max(baseDelay, 0)
		c.jitter = max(jitter, 0)
	}
}

func WithMaxTokens(n int) Option { return func(c *Client) { c.maxTokens = n } }

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSleep replaces the wait between attempts (tests record instead of sleeping).
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = f }
}

// WithJitterSource replaces the uniform [0, limit) jitter draw.
func WithJitterSource(f func(limit time.Duration) time.Duration) Option {
	return func(c *Client) { c.jitterFn = f }
}

func New(rt ai.Runtime, model string, opts ...Option) *Client {
	c := &Client{
		rt:          rt,
		model:       model,
		maxAttempts: MaxRetries,
		baseDelay:   defaultBaseDelay,
		jitter:      defaultJitter,
		log:         zap.NewNop(),
		sleep:       sleepCtx,
		jitterFn:    uniformJitter,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string { return c.model }

// Backoff returns the wait before the attempt following failed attempt i (0-based).
func (c *Client) Backoff(i int) time.Duration {
	d := c.baseDelay << uint(i)
	if c.jitter > 0 {
		d += c.jitterFn(c.jitter)
	}
	return d
}

func (c *Client) request(prompt string, schema *ai.Schema, temperature float64) ai.GenerateRequest {
	return ai.GenerateRequest{
		Model:       c.model,
		Messages:    ai.UserPrompt(prompt),
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
		Schema:      schema,
	}
}

// Invoke returns the raw JSON text produced for prompt. Failures are
// returned as *insight.ServiceError.
func (c *Client) Invoke(ctx context.Context, prompt string, schema *ai.Schema, temperature float64) (string, error) {
	req := c.request(prompt, schema, temperature)
	log := c.log.With(zap.String("model", c.model), zap.String("schema", schemaName(schema)))
	var last error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.Backoff(attempt - 1)
			log.Debug("retrying after quota error", zap.Int("attempt", attempt+1), zap.Duration("wait", wait))
			if err := c.sleep(ctx, wait); err != nil {
				return "", ai.Classify(err)
			}
		}
		log.Debug("completion attempt", zap.Int("attempt", attempt+1), zap.Int("prompt_tokens_est", utils.CountTokens(prompt)))
		resp, err := c.rt.Generate(ctx, req)
		if err == nil {
			text := resp.Text()
			if strings.TrimSpace(text) == "" {
				return "", &insight.ServiceError{Kind: insight.KindOther, Err: ErrEmptyResponse}
			}
			log.Debug("completion done", zap.Int("attempt", attempt+1), zap.Int("completion_tokens", resp.Usage.CompletionTokens))
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ai.Classify(ctx.Err())
		}
		last = ai.Classify(err)
		if ai.Kind(err) != insight.KindQuota {
			log.Debug("completion failed", zap.Int("attempt", attempt+1), zap.Error(err))
			return "", last
		}
		log.Warn("quota error from completion service", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return "", last
}

func schemaName(s *ai.Schema) string {
	if s == nil {
		return ""
	}
	return s.Name
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit)))
}

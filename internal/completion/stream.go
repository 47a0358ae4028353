package completion

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat-cli/internal/ai"
	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/utils"
)

// Chunk is one step of a streamed completion. Text is the text accumulated
// so far; the last chunk has Final set and carries the complete answer.
type Chunk struct {
	Delta string
	Text  string
	Final bool
}

type streamItem struct {
	chunk Chunk
	err   error
}

// Stream is a finite, non-restartable, pull-based sequence of chunks.
// Callers must either read until Next returns an error or call Close.
type Stream struct {
	items  chan streamItem
	cancel context.CancelFunc
	done   chan struct{}

	// Written by the producer before items is closed.
	ended bool
	err   error
}

// Next returns the next chunk. After the final chunk (or after an error)
// it returns io.EOF. A stream cut short by cancellation reports the
// context error instead.
func (s *Stream) Next() (Chunk, error) {
	it, ok := <-s.items
	if !ok {
		if s.err != nil {
			return Chunk{}, s.err
		}
		return Chunk{}, io.EOF
	}
	if it.err != nil {
		return Chunk{}, it.err
	}
	return it.chunk, nil
}

// Close cancels the underlying call and waits for the producer to exit.
func (s *Stream) Close() {
	s.cancel()
	<-s.done
}

// Collect drains s and returns the final text. onPartial, if set, sees each
// non-final chunk.
func Collect(s *Stream, onPartial func(Chunk)) (string, error) {
	defer s.Close()
	for {
		ch, err := s.Next()
		if err != nil {
			if err == io.EOF {
				return "", &insight.ServiceError{Kind: insight.KindOther, Err: io.ErrUnexpectedEOF}
			}
			return "", err
		}
		if ch.Final {
			return ch.Text, nil
		}
		if onPartial != nil {
			onPartial(ch)
		}
	}
}

func (s *Stream) emit(ctx context.Context, it streamItem) bool {
	select {
	case s.items <- it:
		if it.err != nil || it.chunk.Final {
			s.ended = true
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// InvokeStream starts a streamed completion. The retry policy of Invoke
// applies only while no chunk has been delivered. Runtimes that cannot
// stream produce a single final chunk.
func (c *Client) InvokeStream(ctx context.Context, prompt string, schema *ai.Schema, temperature float64) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, ai.Classify(err)
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Stream{items: make(chan streamItem), cancel: cancel, done: make(chan struct{})}

	srt, ok := c.rt.(ai.StreamRuntime)
	go func() {
		defer close(s.done)
		defer func() {
			if !s.ended && sctx.Err() != nil {
				s.err = ai.Classify(sctx.Err())
			}
			close(s.items)
		}()
		if !ok {
			text, err := c.Invoke(sctx, prompt, schema, temperature)
			if err != nil {
				s.emit(sctx, streamItem{err: err})
				return
			}
			s.emit(sctx, streamItem{chunk: Chunk{Delta: text, Text: text, Final: true}})
			return
		}
		c.runStream(sctx, s, srt, prompt, schema, temperature)
	}()
	return s, nil
}

func (c *Client) runStream(ctx context.Context, s *Stream, srt ai.StreamRuntime, prompt string, schema *ai.Schema, temperature float64) {
	req := c.request(prompt, schema, temperature)
	log := c.log.With(zap.String("model", c.model), zap.String("schema", schemaName(schema)), zap.Bool("stream", true))
	var last error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.Backoff(attempt - 1)
			log.Debug("retrying after quota error", zap.Int("attempt", attempt+1), zap.Duration("wait", wait))
			if err := c.sleep(ctx, wait); err != nil {
				s.emit(ctx, streamItem{err: ai.Classify(err)})
				return
			}
		}
		log.Debug("completion attempt", zap.Int("attempt", attempt+1), zap.Int("prompt_tokens_est", utils.CountTokens(prompt)))

		var sb strings.Builder
		delivered := false
		aborted := false
		err := srt.GenerateStream(ctx, req, func(d string) {
			if d == "" || aborted {
				return
			}
			sb.WriteString(d)
			delivered = true
			if !s.emit(ctx, streamItem{chunk: Chunk{Delta: d, Text: sb.String()}}) {
				aborted = true
			}
		})
		if aborted || ctx.Err() != nil {
			return
		}
		if err == nil {
			text := sb.String()
			if strings.TrimSpace(text) == "" {
				s.emit(ctx, streamItem{err: &insight.ServiceError{Kind: insight.KindOther, Err: ErrEmptyResponse}})
				return
			}
			s.emit(ctx, streamItem{chunk: Chunk{Text: text, Final: true}})
			return
		}
		last = ai.Classify(err)
		if delivered || ai.Kind(err) != insight.KindQuota {
			log.Debug("stream failed", zap.Int("attempt", attempt+1), zap.Bool("delivered", delivered), zap.Error(err))
			s.emit(ctx, streamItem{err: last})
			return
		}
		log.Warn("quota error from completion service", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	s.emit(ctx, streamItem{err: last})
}

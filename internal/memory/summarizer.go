package memory

import (
	"context"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat-cli/internal/ai"
	"github.com/KaramelBytes/datachat-cli/internal/normalize"
	"github.com/KaramelBytes/datachat-cli/internal/prompt"
)

// SummaryTemperature keeps summaries close to the transcript.
const SummaryTemperature = 0.2

// Completer is the part of the completion client a summarizer needs.
type Completer interface {
	Invoke(ctx context.Context, prompt string, schema *ai.Schema, temperature float64) (string, error)
}

// CompletionSummarizer asks the completion service for a summary using the
// summary schema. Failures are logged and yield "".
type CompletionSummarizer struct {
	c   Completer
	log *zap.Logger
}

func NewCompletionSummarizer(c Completer, log *zap.Logger) *CompletionSummarizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &CompletionSummarizer{c: c, log: log}
}

func (s *CompletionSummarizer) Summarize(ctx context.Context, older, previous string) string {
	raw, err := s.c.Invoke(ctx, prompt.Summary(older, previous), normalize.SummarySchema, SummaryTemperature)
	if err != nil {
		s.log.Warn("summarization failed", zap.Error(err))
		return ""
	}
	text, err := normalize.Summary(raw)
	if err != nil {
		s.log.Warn("summarization response unusable", zap.Error(err))
		return ""
	}
	return text
}

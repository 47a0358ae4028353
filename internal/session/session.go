// Package session sequences profiling, pre-analysis, analysis and chat for
// one uploaded file.
//
// A Session is not safe for concurrent use. At most one primary call
// (Upload, Analyze, Ask, AskStream) may be in flight at a time; callers must
// wait for it to return before issuing the next. The background summary
// started by the memory manager is the only work that outlives a call.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat-cli/internal/ai"
	"github.com/KaramelBytes/datachat-cli/internal/completion"
	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/memory"
	"github.com/KaramelBytes/datachat-cli/internal/normalize"
	"github.com/KaramelBytes/datachat-cli/internal/profile"
	"github.com/KaramelBytes/datachat-cli/internal/prompt"
	"github.com/KaramelBytes/datachat-cli/internal/store"
)

// State is the session lifecycle position.
type State string

const (
	StatePreAnalysis        State = "pre_analysis"
	StateLoading            State = "loading"
	StateShowingSuggestions State = "showing_suggestions"
	StateChat               State = "chat"
	StateError              State = "error"
)

const (
	DefaultSampleLines  = 100
	DefaultPreviewLines = 20
	DefaultTemperature  = 0.3
)

// ErrInvalidState is returned when an operation is called in the wrong state.
var ErrInvalidState = errors.New("invalid session state")

// Completer is the completion client surface the session drives.
type Completer interface {
	Invoke(ctx context.Context, prompt string, schema *ai.Schema, temperature float64) (string, error)
	InvokeStream(ctx context.Context, prompt string, schema *ai.Schema, temperature float64) (*completion.Stream, error)
}

type Session struct {
	llm          Completer
	mem          *memory.Manager
	store        store.TranscriptStore
	log          *zap.Logger
	sampleLines  int
	previewLines int
	temperature  float64
	now          func() time.Time

	state    State
	fileName string
	csv      string
	profile  *insight.DatasetProfile
	pre      *insight.PreAnalysisResult
	turns    []insight.ConversationTurn
	notice   *insight.Notice
	pending  *memory.Task
}

type Option func(*Session)

func WithStore(s store.TranscriptStore) Option {
	return func(x *Session) {
		if s != nil {
			x.store = s
		}
	}
}

// WithMemory replaces the default manager, which summarizes through the
// session's own completer.
func WithMemory(m *memory.Manager) Option {
	return func(x *Session) {
		if m != nil {
			x.mem = m
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(x *Session) {
		if l != nil {
			x.log = l
		}
	}
}

// WithSampleLines sets how many data lines go into analysis prompts.
func WithSampleLines(n int) Option {
	return func(x *Session) {
		if n > 0 {
			x.sampleLines = n
		}
	}
}

// WithPreviewLines sets how many data lines go into the pre-analysis prompt.
func WithPreviewLines(n int) Option {
	return func(x *Session) {
		if n > 0 {
			x.previewLines = n
		}
	}
}

func WithTemperature(t float64) Option {
	return func(x *Session) { x.temperature = t }
}

func WithClock(now func() time.Time) Option {
	return func(x *Session) {
		if now != nil {
			x.now = now
		}
	}
}

func New(llm Completer, opts ...Option) *Session {
	s := &Session{
		llm:          llm,
		log:          zap.NewNop(),
		sampleLines:  DefaultSampleLines,
		previewLines: DefaultPreviewLines,
		temperature:  DefaultTemperature,
		now:          time.Now,
		state:        StatePreAnalysis,
	}
	for _, o := range opts {
		o(s)
	}
	if s.store == nil {
		s.store = store.NewMemoryStore()
	}
	if s.mem == nil {
		s.mem = memory.New(memory.NewCompletionSummarizer(llm, s.log), memory.WithLogger(s.log))
	}
	return s
}

func (s *Session) State() State { return s.state }
func (s *Session) FileName() string { return s.fileName }
func (s *Session) Profile() *insight.DatasetProfile { return s.profile }
func (s *Session) PreAnalysis() *insight.PreAnalysisResult { return s.pre }
func (s *Session) Summary() string { return s.mem.Summary() }

// Notice describes the error that put the session into StateError.
func (s *Session) Notice() *insight.Notice { return s.notice }

// Turns returns a copy of the transcript.
func (s *Session) Turns() []insight.ConversationTurn {
	out := make([]insight.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// WaitSummary blocks until the most recent background summary finishes and
// saves the transcript again when that summary was applied.
func (s *Session) WaitSummary(ctx context.Context) error {
	applied, err := s.pending.Wait(ctx)
	if err != nil {
		return err
	}
	if applied {
		s.persist(ctx)
	}
	return nil
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.log.Debug("session state", zap.String("from", string(s.state)), zap.String("to", string(st)))
	s.state = st
}

func (s *Session) fail(err error) error {
	n := insight.Describe(err)
	s.notice = &n
	s.log.Warn("session error", zap.String("title", n.Title), zap.Error(err))
	s.setState(StateError)
	return err
}

func (s *Session) expect(states ...State) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
}

// load profiles csvText and makes it the active file, dropping any previous
// conversation.
func (s *Session) load(fileName, csvText string) error {
	p, err := profile.Profile(csvText)
	if err != nil {
		return err
	}
	s.clear()
	s.fileName, s.csv, s.profile = fileName, csvText, p
	s.log.Info("profiled file",
		zap.String("file", fileName),
		zap.Int("rows", p.RowCount),
		zap.Int("columns", p.ColumnCount),
	)
	return nil
}

// Upload profiles the file and runs the quick-recognition round trip.
func (s *Session) Upload(ctx context.Context, fileName, csvText string) (*insight.PreAnalysisResult, error) {
	s.setState(StateLoading)
	if err := s.load(fileName, csvText); err != nil {
		return nil, s.fail(err)
	}
	p := prompt.QuickRecognition(s.profile.Header(), profile.Sample(csvText, s.previewLines))
	raw, err := s.llm.Invoke(ctx, p, normalize.PreAnalysisSchema, s.temperature)
	if err != nil {
		return nil, s.fail(err)
	}
	pre, err := normalize.PreAnalysis(raw)
	if err != nil {
		return nil, s.fail(err)
	}
	s.pre = pre
	s.setState(StateShowingSuggestions)
	return pre, nil
}

// Restore profiles the file and, when a transcript for it was persisted,
// reloads it with its rolling summary and enters chat without calling the
// service. It reports whether a transcript was found; if not, the caller
// should Upload.
func (s *Session) Restore(ctx context.Context, fileName, csvText string) (bool, error) {
	if err := s.load(fileName, csvText); err != nil {
		return false, s.fail(err)
	}
	tr, ok, err := s.store.Get(ctx, store.KeyFor(fileName))
	if err != nil {
		s.log.Warn("load transcript", zap.String("file", fileName), zap.Error(err))
		return false, nil
	}
	if !ok || len(tr.Turns) == 0 {
		return false, nil
	}
	s.turns = tr.Turns
	s.mem.Seed(tr.Summary)
	s.setState(StateChat)
	return true, nil
}

// Analyze runs the first full analysis and seeds the chat with its result.
func (s *Session) Analyze(ctx context.Context, question string) (*insight.AnalysisResult, error) {
	if err := s.expect(StateShowingSuggestions); err != nil {
		return nil, err
	}
	s.setState(StateLoading)
	raw, err := s.llm.Invoke(ctx, s.analysisPrompt(question, memory.Window{}), normalize.AnalysisSchema, s.temperature)
	if err != nil {
		return nil, s.fail(err)
	}
	res, err := normalize.Analysis(raw)
	if err != nil {
		return nil, s.fail(err)
	}
	s.turns = []insight.ConversationTurn{s.agentTurn(res)}
	s.setState(StateChat)
	s.persist(ctx)
	return res, nil
}

// Ask answers one chat question. On failure the in-flight turn is replaced
// by an error turn and the rest of the transcript is left as it was.
func (s *Session) Ask(ctx context.Context, question string) (*insight.ConversationTurn, error) {
	return s.turn(ctx, question, func(p string) (string, error) {
		return s.llm.Invoke(ctx, p, normalize.AnalysisSchema, s.temperature)
	})
}

// AskStream is Ask over a streamed completion. onPartial sees display-only
// results built from the text received so far; only the returned turn is
// final.
func (s *Session) AskStream(ctx context.Context, question string, onPartial func(*insight.AnalysisResult)) (*insight.ConversationTurn, error) {
	return s.turn(ctx, question, func(p string) (string, error) {
		st, err := s.llm.InvokeStream(ctx, p, normalize.AnalysisSchema, s.temperature)
		if err != nil {
			return "", err
		}
		idx := len(s.turns) - 1
		return completion.Collect(st, func(ch completion.Chunk) {
			partial, ok := normalize.Partial(ch.Text)
			if !ok || len(partial.Findings) == 0 {
				return
			}
			placeholder := s.turns[idx]
			placeholder.AnalysisResult = partial
			placeholder.Text = partial.Text()
			s.turns[idx] = placeholder
			if onPartial != nil {
				onPartial(partial)
			}
		})
	})
}

func (s *Session) turn(ctx context.Context, question string, complete func(prompt string) (string, error)) (*insight.ConversationTurn, error) {
	if err := s.expect(StateChat); err != nil {
		return nil, err
	}
	win, task := s.mem.Prepare(ctx, s.turns)
	if task != nil {
		s.pending = task
	}
	s.turns = append(s.turns,
		insight.ConversationTurn{ID: uuid.NewString(), Sender: insight.SenderUser, Text: question, CreatedAt: s.now()},
		insight.ConversationTurn{ID: uuid.NewString(), Sender: insight.SenderAgent, InFlight: true, CreatedAt: s.now()},
	)
	idx := len(s.turns) - 1

	raw, err := complete(s.analysisPrompt(question, win))
	var res *insight.AnalysisResult
	if err == nil {
		res, err = normalize.Analysis(raw)
	}
	if err != nil {
		n := insight.Describe(err)
		s.log.Warn("chat turn failed", zap.String("title", n.Title), zap.Error(err))
		s.turns[idx] = insight.ConversationTurn{
			ID:        s.turns[idx].ID,
			Sender:    insight.SenderAgent,
			Text:      n.Title + ": " + n.Message,
			IsError:   true,
			CreatedAt: s.now(),
		}
		s.persist(ctx)
		return nil, err
	}
	final := s.agentTurn(res)
	final.ID = s.turns[idx].ID
	s.turns[idx] = final
	s.persist(ctx)
	return &final, nil
}

func (s *Session) analysisPrompt(question string, win memory.Window) string {
	return prompt.Analysis(prompt.Input{
		FileName: s.fileName,
		Sample:   profile.Sample(s.csv, s.sampleLines),
		Question: question,
		History:  win.History,
		Summary:  win.Summary,
		Profile:  s.profile,
	})
}

func (s *Session) agentTurn(res *insight.AnalysisResult) insight.ConversationTurn {
	return insight.ConversationTurn{
		ID:             uuid.NewString(),
		Sender:         insight.SenderAgent,
		Text:           res.Text(),
		AnalysisResult: res,
		CreatedAt:      s.now(),
	}
}

// persist saves the settled turns and the current rolling summary. Store
// failures are logged only.
func (s *Session) persist(ctx context.Context) {
	if s.fileName == "" {
		return
	}
	settled := make([]insight.ConversationTurn, 0, len(s.turns))
	for _, t := range s.turns {
		if !t.InFlight {
			settled = append(settled, t)
		}
	}
	tr := store.Transcript{Turns: settled, Summary: s.mem.Summary()}
	if err := s.store.Set(ctx, store.KeyFor(s.fileName), tr); err != nil {
		s.log.Warn("save transcript", zap.String("file", s.fileName), zap.Error(err))
	}
}

func (s *Session) clear() {
	s.fileName, s.csv = "", ""
	s.profile, s.pre, s.notice = nil, nil, nil
	s.turns = nil
	s.pending = nil
	s.mem.Reset()
}

// Reset returns to StatePreAnalysis, discarding the profile, the rolling
// summary and the in-memory transcript. The persisted transcript is kept.
func (s *Session) Reset() {
	s.clear()
	s.setState(StatePreAnalysis)
}

// ClearHistory removes the persisted transcript of the active file.
func (s *Session) ClearHistory(ctx context.Context) error {
	if s.fileName == "" {
		return nil
	}
	if err := s.store.Remove(ctx, store.KeyFor(s.fileName)); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

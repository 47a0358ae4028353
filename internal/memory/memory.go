// Package memory keeps chat prompts bounded by folding older turns into a
// rolling summary that is refreshed in the background.
package memory

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

const (
	DefaultThreshold      = 6000
	DefaultRecentTurns    = 4
	DefaultSummaryTimeout = 60 * time.Second
)

// Summarizer condenses older transcript text. It must not fail: an empty
// string means no summary could be produced.
type Summarizer interface {
	Summarize(ctx context.Context, older, previous string) string
}

// Window is the conversation context for the next prompt.
type Window struct {
	History string
	Summary string
}

// state is swapped as a whole. seq orders summarization results; epoch
// changes on Reset so results started before it are discarded.
type state struct {
	epoch uint64
	seq   uint64
	text  string
}

// Manager decides per turn whether to summarize. Prepare may be called while
// an earlier summarization is still running.
type Manager struct {
	threshold  int
	recent     int
	timeout    time.Duration
	summarizer Summarizer
	log        *zap.Logger

	seq   atomic.Uint64
	state atomic.Pointer[state]
}

type Option func(*Manager)

// WithThreshold sets the transcript length, in characters, above which older
// turns are summarized.
func WithThreshold(chars int) Option {
	return func(m *Manager) {
		if chars > 0 {
			m.threshold = chars
		}
	}
}

// WithRecentTurns sets how many trailing turns are always sent verbatim.
func WithRecentTurns(k int) Option {
	return func(m *Manager) {
		if k > 0 {
			m.recent = k
		}
	}
}

func WithSummaryTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// New returns a Manager. A nil summarizer disables background summaries.
func New(s Summarizer, opts ...Option) *Manager {
	m := &Manager{
		threshold:  DefaultThreshold,
		recent:     DefaultRecentTurns,
		timeout:    DefaultSummaryTimeout,
		summarizer: s,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	m.state.Store(&state{})
	return m
}

// Summary returns the current rolling summary.
func (m *Manager) Summary() string { return m.state.Load().text }

// Reset drops the rolling summary. Summarizations still running are
// discarded when they finish.
func (m *Manager) Reset() { m.Seed("") }

// Seed replaces the rolling summary with text, e.g. one saved alongside a
// restored transcript. Like Reset it discards running summarizations.
func (m *Manager) Seed(text string) {
	text = strings.TrimSpace(text)
	for {
		cur := m.state.Load()
		next := &state{epoch: cur.epoch + 1, seq: m.seq.Load(), text: text}
		if m.state.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Prepare builds the window for the next prompt from the transcript. When the
// transcript is over the threshold it starts summarizing the older turns and
// returns the task; it never waits for it.
func (m *Manager) Prepare(ctx context.Context, turns []insight.ConversationTurn) (Window, *Task) {
	lines := Lines(turns)
	full := strings.Join(lines, "\n")
	if utf8.RuneCountInString(full) <= m.threshold {
		return Window{History: full}, nil
	}

	split := max(len(lines)-m.recent, 0)
	older := strings.Join(lines[:split], "\n")
	win := Window{
		History: strings.Join(lines[split:], "\n"),
		Summary: m.Summary(),
	}
	if older == "" || m.summarizer == nil {
		return win, nil
	}
	return win, m.start(ctx, older, win.Summary)
}

func (m *Manager) start(ctx context.Context, older, previous string) *Task {
	t := &Task{done: make(chan struct{})}
	seq := m.seq.Add(1)
	epoch := m.state.Load().epoch
	// the summary outlives the turn that asked for it
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	go func() {
		defer close(t.done)
		defer cancel()
		text := strings.TrimSpace(m.summarizer.Summarize(bg, older, previous))
		if text == "" {
			m.log.Debug("summary empty, keeping previous", zap.Uint64("seq", seq))
			return
		}
		t.applied = m.apply(epoch, seq, text)
		m.log.Debug("summary finished",
			zap.Uint64("seq", seq),
			zap.Bool("applied", t.applied),
			zap.Int("chars", len(text)),
		)
	}()
	return t
}

// apply installs text unless a newer summary or a Reset got there first.
func (m *Manager) apply(epoch, seq uint64, text string) bool {
	for {
		cur := m.state.Load()
		if cur.epoch != epoch || cur.seq >= seq {
			return false
		}
		if m.state.CompareAndSwap(cur, &state{epoch: epoch, seq: seq, text: text}) {
			return true
		}
	}
}

// Lines renders each settled turn as "SENDER: text".
func Lines(turns []insight.ConversationTurn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.InFlight {
			continue
		}
		out = append(out, string(t.Sender)+": "+t.Text)
	}
	return out
}

// Task is a handle on one background summarization.
type Task struct {
	done    chan struct{}
	applied bool
}

// Wait blocks until the summarization finishes or ctx is done. It reports
// whether the result replaced the rolling summary. A nil Task is finished.
func (t *Task) Wait(ctx context.Context) (bool, error) {
	if t == nil {
		return false, nil
	}
	select {
	case <-t.done:
		return t.applied, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

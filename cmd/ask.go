package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/session"
)

var (
	askJSON   bool
	askStream bool
	askFresh  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <file> [question]",
	Short: "Ask one question about a data file",
	Long: `Ask profiles the file and asks the model one question about it.

Without a question it prints the quick look and suggested questions. A
question of "1", "2", ... picks that suggestion. When a conversation about
the same file name was saved earlier, the question continues it unless
--fresh is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, text, err := readUpload(args[0])
		if err != nil {
			return err
		}
		question := ""
		if len(args) == 2 {
			question = strings.TrimSpace(args[1])
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		out := cmd.OutOrStdout()

		restored, err := openConversation(ctx, a, name, text, askFresh)
		if err != nil {
			return explain(err, a.provider)
		}
		defer a.settle(ctx)
		s := a.session
		if !restored && !askJSON {
			renderPreAnalysis(out, s.PreAnalysis())
		}
		if question == "" {
			if askJSON {
				return writeJSON(out, map[string]any{"file": name, "profile": s.Profile(), "preAnalysis": s.PreAnalysis()})
			}
			if restored {
				fmt.Fprintf(out, "✓ Saved conversation about %s has %d turns; pass a question to continue it\n", name, len(s.Turns()))
			}
			return nil
		}
		question = pickSuggestion(question, s.PreAnalysis())
		if !askJSON {
			fmt.Fprintf(out, "\n⚙ Asking %s (model=%s)\n\n", a.provider, a.model)
		}
		w := out
		if askJSON {
			w = io.Discard
		}
		res, err := answer(ctx, s, question, askStream && !askJSON, w)
		if err != nil {
			return explain(err, a.provider)
		}
		if askJSON {
			return writeJSON(out, map[string]any{"file": name, "question": question, "result": res})
		}
		return nil
	},
}

// openConversation restores a saved transcript for name, or uploads the file
// and waits at the suggestions step.
func openConversation(ctx context.Context, a *app, name, text string, fresh bool) (bool, error) {
	if !fresh {
		ok, err := a.session.Restore(ctx, name, text)
		if err != nil || ok {
			return ok, err
		}
	}
	_, err := a.session.Upload(ctx, name, text)
	return false, err
}

// answer routes a question to Analyze before the first answer and to Ask
// afterwards, printing the result to out.
func answer(ctx context.Context, s *session.Session, question string, stream bool, out io.Writer) (*insight.AnalysisResult, error) {
	if s.State() == session.StateShowingSuggestions {
		question = pickSuggestion(question, s.PreAnalysis())
		res, err := s.Analyze(ctx, question)
		if err == nil {
			renderResult(out, res)
		}
		return res, err
	}
	if !stream {
		t, err := s.Ask(ctx, question)
		if err != nil {
			return nil, err
		}
		renderResult(out, t.AnalysisResult)
		return t.AnalysisResult, nil
	}
	p := &streamPrinter{w: out}
	t, err := s.AskStream(ctx, question, p.partial)
	if err != nil {
		return nil, err
	}
	p.final(t.AnalysisResult)
	return t.AnalysisResult, nil
}

// pickSuggestion maps "1".."n" onto the suggested questions.
func pickSuggestion(q string, pre *insight.PreAnalysisResult) string {
	if pre == nil {
		return q
	}
	if i, err := strconv.Atoi(strings.TrimSpace(q)); err == nil && i >= 1 && i <= len(pre.SuggestedQuestions) {
		return pre.SuggestedQuestions[i-1]
	}
	return q
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print findings as they arrive")
	askCmd.Flags().BoolVar(&askFresh, "fresh", false, "ignore any saved conversation for this file")
}

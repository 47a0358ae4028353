package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datachat-cli/internal/session"
)

var (
	chatStream bool
	chatFresh  bool
)

const chatHelp = `Commands:
  /history   show the conversation so far
  /summary   show the rolling summary of older turns
  /reset     start over with the same file (the saved conversation is kept)
  /clear     delete the saved conversation and start over
  /quit      leave
Type 1, 2, ... to pick a suggested question.`

var chatCmd = &cobra.Command{
	Use:   "chat <file>",
	Short: "Chat interactively about a data file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, text, err := readUpload(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		defer a.settle(cmd.Context())
		r := &repl{
			app:  a,
			name: name,
			text: text,
			in:   bufio.NewScanner(cmd.InOrStdin()),
			out:  cmd.OutOrStdout(),
		}
		return r.run(cmd.Context(), chatFresh)
	},
}

type repl struct {
	app  *app
	name string
	text string
	in   *bufio.Scanner
	out  io.Writer
}

func (r *repl) run(ctx context.Context, fresh bool) error {
	if err := r.open(ctx, fresh); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "\nType a question, or /help.")
	for {
		fmt.Fprint(r.out, "\n> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "✗ %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		r.ask(ctx, line)
	}
}

func (r *repl) open(ctx context.Context, fresh bool) error {
	restored, err := openConversation(ctx, r.app, r.name, r.text, fresh)
	if err != nil {
		return explain(err, r.app.provider)
	}
	s := r.app.session
	if restored {
		fmt.Fprintf(r.out, "✓ Restored conversation about %s (%d turns)\n", r.name, len(s.Turns()))
		return nil
	}
	renderPreAnalysis(r.out, s.PreAnalysis())
	return nil
}

func (r *repl) ask(ctx context.Context, question string) {
	s := r.app.session
	if s.State() == session.StateError {
		fmt.Fprintln(r.out, "✗ The session is in an error state; use /reset to start over.")
		return
	}
	fmt.Fprintln(r.out)
	if _, err := answer(ctx, s, question, chatStream, r.out); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(r.out, "✗ cancelled")
			return
		}
		fmt.Fprintf(r.out, "✗ %v\n", explain(err, r.app.provider))
	}
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	s := r.app.session
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/history":
		turns := s.Turns()
		if len(turns) == 0 {
			fmt.Fprintln(r.out, "(no conversation yet)")
			return false, nil
		}
		renderTurns(r.out, turns)
	case "/summary":
		if sum := s.Summary(); sum != "" {
			fmt.Fprintln(r.out, sum)
		} else {
			fmt.Fprintln(r.out, "(no summary yet)")
		}
	case "/reset":
		s.Reset()
		return false, r.open(ctx, true)
	case "/clear":
		if err := s.ClearHistory(ctx); err != nil {
			return false, err
		}
		s.Reset()
		fmt.Fprintln(r.out, "✓ Saved conversation deleted")
		return false, r.open(ctx, true)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", line)
	}
	return false, nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatStream, "stream", true, "print findings as they arrive")
	chatCmd.Flags().BoolVar(&chatFresh, "fresh", false, "ignore any saved conversation for this file")
}

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datachat-cli/internal/store"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show or clear saved conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List files with a saved conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close(st)
		keys, err := st.Keys(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(keys) == 0 {
			fmt.Fprintln(out, "(no saved conversations)")
			return nil
		}
		for _, k := range keys {
			tr, ok, err := st.Get(cmd.Context(), k)
			if err != nil || !ok {
				continue
			}
			turns := tr.Turns
			last := ""
			if n := len(turns); n > 0 {
				last = turns[n-1].CreatedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "- %s: %d turns (last %s)\n", store.FileName(k), len(turns), last)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the saved conversation for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close(st)
		tr, ok, err := st.Get(cmd.Context(), store.KeyFor(args[0]))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no saved conversation for %s", filepath.Base(args[0]))
		}
		if historyJSON {
			return writeJSON(cmd.OutOrStdout(), tr.Turns)
		}
		out := cmd.OutOrStdout()
		if tr.Summary != "" {
			fmt.Fprintf(out, "Summary of earlier turns: %s\n", tr.Summary)
		}
		renderTurns(out, tr.Turns)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <file>",
	Short: "Delete the saved conversation for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close(st)
		if err := st.Remove(cmd.Context(), store.KeyFor(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared conversation for %s\n", filepath.Base(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyClearCmd)
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "output turns as JSON")
}

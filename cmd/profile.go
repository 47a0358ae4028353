package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/intake"
	"github.com/KaramelBytes/datachat-cli/internal/profile"
)

var profileJSON bool

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Profile a data file locally without calling a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, text, err := readUpload(args[0])
		if err != nil {
			return err
		}
		p, err := profile.Profile(text)
		if err != nil {
			return explain(err, "")
		}
		out := cmd.OutOrStdout()
		if profileJSON {
			return writeJSON(out, map[string]any{"file": name, "profile": p})
		}
		fmt.Fprint(out, profile.Markdown(name, p))
		return nil
	},
}

// readUpload loads a supported file as CSV text and returns its base name.
func readUpload(path string) (string, string, error) {
	text, err := intake.ReadFile(path)
	if err != nil {
		n := insight.Describe(err)
		return "", "", fmt.Errorf("%s: %s", n.Title, err)
	}
	return filepath.Base(path), text, nil
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().BoolVar(&profileJSON, "json", false, "output the profile as JSON")
}

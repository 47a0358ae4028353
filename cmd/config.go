package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/datachat-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set DataChat configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		for _, k := range cfgpkg.Keys() {
			fmt.Fprintf(out, "%s: %s\n", k, configValue(cfg, k))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := cfg.Set(key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		shown := val
		if key == "api_key" {
			shown = mask(val)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s = %s\n", key, shown)
		return nil
	},
}

func configValue(c *cfgpkg.Global, key string) string {
	switch key {
	case "api_key":
		return mask(c.APIKey)
	case "default_provider":
		return c.DefaultProvider
	case "default_model":
		return c.DefaultModel
	case "temperature":
		return fmt.Sprintf("%.3f", c.Temperature)
	case "max_tokens":
		return fmt.Sprint(c.MaxTokens)
	case "http_timeout_sec":
		return fmt.Sprint(c.HTTPTimeoutSec)
	case "retry_max_attempts":
		return fmt.Sprint(c.RetryMaxAttempts)
	case "retry_base_delay_ms":
		return fmt.Sprint(c.RetryBaseDelayMs)
	case "retry_jitter_ms":
		return fmt.Sprint(c.RetryJitterMs)
	case "ollama_host":
		return c.OllamaHost
	case "sample_lines":
		return fmt.Sprint(c.SampleLines)
	case "preview_lines":
		return fmt.Sprint(c.PreviewLines)
	case "history_threshold_chars":
		return fmt.Sprint(c.HistoryThresholdChars)
	case "recent_turns":
		return fmt.Sprint(c.RecentTurns)
	case "summary_timeout_sec":
		return fmt.Sprint(c.SummaryTimeoutSec)
	case "store_driver":
		return c.StoreDriver
	case "store_path":
		if c.StorePath == "" {
			return "(default)"
		}
		return c.StorePath
	}
	return ""
}

func mask(s string) string {
	if len(s) <= 6 {
		if s == "" {
			return "(unset)"
		}
		return "******"
	}
	return s[:3] + "…" + s[len(s)-3:]
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

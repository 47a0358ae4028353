package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/datachat-cli/internal/config"
	"github.com/KaramelBytes/datachat-cli/internal/logging"
)

var (
	cfgFile string
	debug   bool
	// Provider selection (override config if set)
	flagProvider string
	flagModel    string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryJitterMs    int

	// Loaded configuration
	cfg *cfgpkg.Global
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "datachat",
	Short: "DataChat CLI: profile a CSV and chat with an AI analyst about it",
	Long: `DataChat profiles a CSV (or TSV, XLSX, ZIP) file locally, asks a language
model for a quick read of the data and suggested questions, then answers
follow-up questions with findings and chart-ready data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.datachat/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging on stderr")
	pf.StringVar(&flagProvider, "provider", "", "completion provider: openrouter|openai|gemini|ollama (overrides config)")
	pf.StringVar(&flagModel, "model", "", "model name (overrides config)")
	pf.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	pf.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts on quota errors (overrides config)")
	pf.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	pf.IntVar(&flagRetryJitterMs, "retry-jitter-ms", 0, "max random jitter added to each backoff in ms (overrides config)")
}

// loadConfig reads the config file and applies the root persistent flags
// set on cmd's command line.
func loadConfig(cmd *cobra.Command) error {
	l, err := logging.New(debug)
	if err != nil {
		return err
	}
	log = l

	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	// Apply CLI overrides if provided
	f := cmd.Root().PersistentFlags()
	if f.Changed("provider") && flagProvider != "" {
		cfg.DefaultProvider = flagProvider
	}
	if f.Changed("model") && flagModel != "" {
		cfg.DefaultModel = flagModel
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs >= 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-jitter-ms") && flagRetryJitterMs >= 0 {
		cfg.RetryJitterMs = flagRetryJitterMs
	}
	log.Debug("config loaded",
		zap.String("provider", cfg.DefaultProvider),
		zap.String("store", cfg.StoreDriver),
	)
	return nil
}

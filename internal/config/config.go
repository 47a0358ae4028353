package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`

	// HTTP/Retry configuration. Only quota errors are retried.
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryJitterMs    int `mapstructure:"retry_jitter_ms" yaml:"retry_jitter_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// Prompt sizing and conversation memory
	SampleLines           int `mapstructure:"sample_lines" yaml:"sample_lines"`
	PreviewLines          int `mapstructure:"preview_lines" yaml:"preview_lines"`
	HistoryThresholdChars int `mapstructure:"history_threshold_chars" yaml:"history_threshold_chars"`
	RecentTurns           int `mapstructure:"recent_turns" yaml:"recent_turns"`
	SummaryTimeoutSec     int `mapstructure:"summary_timeout_sec" yaml:"summary_timeout_sec"`

	// Transcript persistence: file, sqlite or memory
	StoreDriver string `mapstructure:"store_driver" yaml:"store_driver"`
	StorePath   string `mapstructure:"store_path" yaml:"store_path"`
}

var defaults = map[string]any{
	"api_key":                 "",
	"default_provider":        "openrouter",
	"default_model":           "",
	"temperature":             0.3,
	"max_tokens":              4096,
	"http_timeout_sec":        60,
	"retry_max_attempts":      3,
	"retry_base_delay_ms":     1000,
	"retry_jitter_ms":         1000,
	"ollama_host":             "http://127.0.0.1:11434",
	"sample_lines":            100,
	"preview_lines":           20,
	"history_threshold_chars": 6000,
	"recent_turns":            4,
	"summary_timeout_sec":     60,
	"store_driver":            "file",
	"store_path":              "",
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dir returns ~/.datachat.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".datachat"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.datachat/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. CLI flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DATACHAT")
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Set assigns one key from its string form.
func (c *Global) Set(key, val string) error {
	val = strings.TrimSpace(val)
	atoi := func(lo int) (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < lo {
			return 0, fmt.Errorf("invalid int for %s: %q", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "api_key":
		c.APIKey = val
	case "default_provider":
		c.DefaultProvider = strings.ToLower(val)
	case "default_model":
		c.DefaultModel = val
	case "temperature":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %q", val)
		}
		c.Temperature = f
	case "max_tokens":
		c.MaxTokens, err = atoi(1)
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi(1)
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi(1)
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = atoi(0)
	case "retry_jitter_ms":
		c.RetryJitterMs, err = atoi(0)
	case "ollama_host":
		c.OllamaHost = val
	case "sample_lines":
		c.SampleLines, err = atoi(1)
	case "preview_lines":
		c.PreviewLines, err = atoi(1)
	case "history_threshold_chars":
		c.HistoryThresholdChars, err = atoi(1)
	case "recent_turns":
		c.RecentTurns, err = atoi(1)
	case "summary_timeout_sec":
		c.SummaryTimeoutSec, err = atoi(1)
	case "store_driver":
		switch d := strings.ToLower(val); d {
		case "file", "sqlite", "memory":
			c.StoreDriver = d
		default:
			return fmt.Errorf("invalid store_driver: %s (use file, sqlite or memory)", val)
		}
	case "store_path":
		c.StorePath = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

// providerKeyEnv lists the vendor variables consulted when api_key is unset.
var providerKeyEnv = map[string][]string{
	"openrouter": {"OPENROUTER_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"google":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// APIKeyFor returns the key to use for provider: api_key when set, otherwise
// the provider's conventional environment variable.
func (c *Global) APIKeyFor(provider string) string {
	if c.APIKey != "" {
		return c.APIKey
	}
	for _, name := range providerKeyEnv[strings.ToLower(provider)] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func (c *Global) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c *Global) RetryJitter() time.Duration {
	return time.Duration(c.RetryJitterMs) * time.Millisecond
}

func (c *Global) SummaryTimeout() time.Duration {
	return time.Duration(c.SummaryTimeoutSec) * time.Second
}

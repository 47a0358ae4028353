package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat-cli/internal/ai"
	"github.com/KaramelBytes/datachat-cli/internal/completion"
	cfgpkg "github.com/KaramelBytes/datachat-cli/internal/config"
	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/memory"
	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/store"
)

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

// resolveProvider normalizes the provider name: flag, then config, then openrouter.
func resolveProvider(cfg *cfgpkg.Global, flag string) string {
	name := strings.ToLower(strings.TrimSpace(flag))
	if name == "" && cfg != nil {
		name = strings.ToLower(strings.TrimSpace(cfg.DefaultProvider))
	}
	switch name {
	case "":
		return ai.ProviderOpenRouter
	case ai.ProviderLocal:
		return ai.ProviderOllama
	case ai.ProviderGoogle:
		return ai.ProviderGemini
	}
	return name
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	if cfg == nil {
		cfg = &cfgpkg.Global{}
	}
	providerName := resolveProvider(cfg, opts.ProviderFlag)
	rc := ai.RuntimeConfig{HTTPTimeout: cfg.HTTPTimeout()}
	if rc.HTTPTimeout <= 0 {
		rc.HTTPTimeout = 60 * time.Second
	}

	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		rc.Host = host
	} else {
		// A missing key surfaces as ai.ErrMissingAPIKey on the first call.
		rc.APIKey = cfg.APIKeyFor(providerName)
	}

	client, err := ai.GetRuntime(providerName, rc)
	if err != nil {
		return nil, providerName, err
	}
	return client, providerName, nil
}

func selectModel(cfg *cfgpkg.Global, provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" {
		return cfg.DefaultModel
	}
	return ai.DefaultModel(provider)
}

// app bundles what a command needs to run a session.
type app struct {
	session  *session.Session
	store    store.TranscriptStore
	model    string
	provider string
	// how long settle waits for a background summary
	summaryWait time.Duration
}

// settle waits for the last background summary so it is saved with the
// transcript before the command exits.
func (a *app) settle(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.summaryWait)
	defer cancel()
	if err := a.session.WaitSummary(ctx); err != nil {
		log.Warn("background summary not saved", zap.Error(err))
	}
}

func (a *app) Close() {
	if err := store.Close(a.store); err != nil {
		log.Warn("close store", zap.Error(err))
	}
}

func openStore(cfg *cfgpkg.Global) (store.TranscriptStore, error) {
	s, err := store.Open(cfg.StoreDriver, cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	return s, nil
}

// newApp wires runtime, completion client, transcript store and memory into
// a session.
func newApp(cfg *cfgpkg.Global) (*app, error) {
	rt, provider, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: flagProvider})
	if err != nil {
		return nil, err
	}
	model := selectModel(cfg, provider, flagModel)
	llm := completion.New(rt, model,
		completion.WithRetry(cfg.RetryMaxAttempts, cfg.RetryBaseDelay(), cfg.RetryJitter()),
		completion.WithMaxTokens(cfg.MaxTokens),
		completion.WithLogger(log),
	)
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	mem := memory.New(memory.NewCompletionSummarizer(llm, log),
		memory.WithThreshold(cfg.HistoryThresholdChars),
		memory.WithRecentTurns(cfg.RecentTurns),
		memory.WithSummaryTimeout(cfg.SummaryTimeout()),
		memory.WithLogger(log),
	)
	s := session.New(llm,
		session.WithStore(st),
		session.WithMemory(mem),
		session.WithLogger(log),
		session.WithSampleLines(cfg.SampleLines),
		session.WithPreviewLines(cfg.PreviewLines),
		session.WithTemperature(cfg.Temperature),
	)
	log.Debug("session ready", zap.String("provider", provider), zap.String("model", model))
	return &app{session: s, store: st, model: model, provider: provider, summaryWait: cfg.SummaryTimeout()}, nil
}

// explain turns a pipeline error into the user-facing notice plus a hint
// for the common configuration mistakes.
func explain(err error, provider string) error {
	if err == nil {
		return nil
	}
	n := insight.Describe(err)
	msg := n.Title + ": " + n.Message
	var se *insight.ServiceError
	if errors.As(err, &se) {
		switch se.Kind {
		case insight.KindInvalidKey:
			if errors.Is(err, ai.ErrMissingAPIKey) {
				msg += fmt.Sprintf("\n  hint: no key configured for %s; run `datachat config set api_key <key>`", provider)
			} else {
				msg += fmt.Sprintf("\n  hint: check the key for provider %q", provider)
			}
		case insight.KindQuota:
			msg += "\n  hint: raise --retry-max or wait before retrying"
		}
	}
	var unreachable *ai.UnreachableError
	if errors.As(err, &unreachable) && provider == ai.ProviderOllama {
		msg += "\n  hint: is Ollama running? start it with `ollama serve` or set ollama_host"
	}
	if debug {
		fmt.Fprintf(os.Stderr, "debug: %v\n", err)
	}
	return errors.New(msg)
}

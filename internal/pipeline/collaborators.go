package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/resume-optimizer/internal/agent"
	"github.com/jonathan/resume-optimizer/internal/fetch"
	"github.com/jonathan/resume-optimizer/internal/llm"
	"github.com/jonathan/resume-optimizer/internal/research"
	"github.com/jonathan/resume-optimizer/internal/tools"
	"github.com/jonathan/resume-optimizer/internal/types"
)

// ErrMissingReasoningKey is returned when no reasoning service key is supplied.
var ErrMissingReasoningKey = errors.New("reasoning service API key is required")

// RunnerFactory builds the stage runner for one run from its credentials.
// The orchestrator closes the runner's client when the run ends.
type RunnerFactory func(ctx context.Context, creds types.Credentials) (*agent.Runner, error)

// FactoryConfig configures the production collaborators.
type FactoryConfig struct {
	LLM        *llm.Config
	Fetch      *fetch.Options
	UseBrowser bool
	Logger     *slog.Logger
}

// NewRunnerFactory returns a RunnerFactory wired to the configured reasoning
// provider, Google Custom Search and the page fetcher. Web search is left
// unavailable when no search credentials are given.
func NewRunnerFactory(cfg FactoryConfig) RunnerFactory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	llmCfg := cfg.LLM
	if llmCfg == nil {
		llmCfg = llm.DefaultConfig()
	}

	return func(ctx context.Context, creds types.Credentials) (*agent.Runner, error) {
		if creds.ReasoningAPIKey == "" {
			return nil, ErrMissingReasoningKey
		}
		client, err := llm.NewClient(ctx, llmCfg, creds.ReasoningAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create reasoning client: %w", err)
		}

		var searcher tools.Searcher
		if creds.SearchAPIKey != "" && creds.SearchEngineID != "" {
			r, err := research.NewResearcher(ctx, creds.SearchAPIKey, creds.SearchEngineID, logger)
			if err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("failed to create search client: %w", err)
			}
			searcher = r
		} else {
			logger.Warn("web search disabled: search credentials not set")
		}

		var renderer fetch.Renderer
		if cfg.UseBrowser {
			renderer = fetch.NewChromeRenderer(logger)
		}
		fetcher := tools.JobPageFetcher{Fetcher: fetch.NewFetcher(cfg.Fetch, renderer, logger)}

		return agent.NewRunner(client, tools.NewBox(searcher, fetcher, logger), logger), nil
	}
}

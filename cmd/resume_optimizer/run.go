package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/config"
	"github.com/jonathan/resume-optimizer/internal/fetch"
	"github.com/jonathan/resume-optimizer/internal/knowledge"
	"github.com/jonathan/resume-optimizer/internal/llm"
	"github.com/jonathan/resume-optimizer/internal/observability"
	"github.com/jonathan/resume-optimizer/internal/pipeline"
	"github.com/jonathan/resume-optimizer/internal/pipeline/steps"
	"github.com/jonathan/resume-optimizer/internal/types"
)

// reasoningFlags are shared by run and serve.
type reasoningFlags struct {
	provider     string
	model        string
	apiKey       string
	searchAPIKey string
	searchCX     string
	embeddings   bool
	useBrowser   bool
	chunkTokens  int
}

func (r *reasoningFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.provider, "provider", "", "Reasoning provider: openai, gemini or anthropic (default \"openai\")")
	f.StringVar(&r.model, "model", "", "Model for every tier (overrides provider defaults)")
	f.StringVar(&r.apiKey, "api-key", "", "Reasoning API key (optional, defaults to the provider's env var)")
	f.StringVar(&r.searchAPIKey, "search-api-key", "", "Google Custom Search API key (optional, defaults to GOOGLE_SEARCH_API_KEY)")
	f.StringVar(&r.searchCX, "search-cx", "", "Google Custom Search engine ID (optional, defaults to GOOGLE_SEARCH_CX)")
	f.BoolVar(&r.embeddings, "embeddings", false, "Rank resume chunks by embedding similarity")
	f.BoolVar(&r.useBrowser, "use-browser", false, "Use headless browser for SPA job pages (requires Chrome)")
	f.IntVar(&r.chunkTokens, "chunk-tokens", 0, "Token budget per resume chunk")
}

func (r *reasoningFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = r.provider
	}
	if flags.Changed("model") {
		cfg.Model = r.model
	}
	if flags.Changed("api-key") {
		cfg.APIKey = r.apiKey
	}
	if flags.Changed("search-api-key") {
		cfg.SearchAPIKey = r.searchAPIKey
	}
	if flags.Changed("search-cx") {
		cfg.SearchCX = r.searchCX
	}
	if flags.Changed("embeddings") {
		cfg.Embeddings = r.embeddings
	}
	if flags.Changed("use-browser") {
		cfg.UseBrowser = r.useBrowser
	}
	if flags.Changed("chunk-tokens") {
		cfg.ChunkTokens = r.chunkTokens
	}
}

// collaborators are the long-lived pieces built from a resolved config.
type collaborators struct {
	runner   pipeline.RunnerFactory
	embedder llm.Embedder
	creds    types.Credentials
}

func (c *collaborators) Close() {
	if closer, ok := c.embedder.(io.Closer); ok {
		_ = closer.Close()
	}
}

func buildCollaborators(ctx context.Context, cfg config.Config, logger *slog.Logger) (*collaborators, error) {
	llmCfg, err := cfg.LLMConfig()
	if err != nil {
		return nil, err
	}

	c := &collaborators{
		runner: pipeline.NewRunnerFactory(pipeline.FactoryConfig{
			LLM:        llmCfg,
			Fetch:      fetch.DefaultOptions(),
			UseBrowser: cfg.UseBrowser,
			Logger:     logger,
		}),
		creds: types.Credentials{
			ReasoningAPIKey: cfg.APIKey,
			SearchAPIKey:    cfg.SearchAPIKey,
			SearchEngineID:  cfg.SearchCX,
		},
	}

	if cfg.Embeddings && cfg.APIKey != "" {
		c.embedder, err = llm.NewEmbedder(ctx, llmCfg, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		if c.embedder == nil {
			logger.Warn("embeddings unavailable for provider; using full-text ranking", "provider", cfg.Provider)
		}
	}
	return c, nil
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		jobURL  string
		company string
		resume  string
		rf      reasoningFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full optimization pipeline end-to-end",
		Long: `Runs every stage in order: job-analysis -> resume-optimization -> company-research -> resume-generation -> report-generation.

Artifacts of the previous run are cleared first. The first failing stage halts the run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.resolve(cmd, func(c *config.Config) {
				if cmd.Flags().Changed("job-url") {
					c.JobURL = jobURL
				}
				if cmd.Flags().Changed("company") {
					c.Company = company
				}
				if cmd.Flags().Changed("resume") {
					c.Resume = resume
				}
				rf.apply(cmd, c)
			})
			if err != nil {
				return err
			}
			return runPipeline(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&jobURL, "job-url", "j", "", "URL of the job posting")
	cmd.Flags().StringVarP(&company, "company", "c", "", "Company name")
	cmd.Flags().StringVarP(&resume, "resume", "r", "", "Path to the resume (PDF or text)")
	rf.register(cmd)
	return cmd
}

func runPipeline(cmd *cobra.Command, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	in := types.RunInputs{JobURL: cfg.JobURL, CompanyName: cfg.Company}
	if cfg.Resume != "" {
		doc, err := os.ReadFile(cfg.Resume)
		if err != nil {
			return fmt.Errorf("failed to read resume: %w", err)
		}
		in.Document = doc
		in.DocumentName = filepath.Base(cfg.Resume)
	}
	if err := pipeline.ValidateInputs(in); err != nil {
		return err
	}

	deps, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	index, err := knowledge.New(knowledge.Options{
		Dir:         cfg.IndexDir,
		Embedder:    deps.embedder,
		ChunkTokens: cfg.ChunkTokens,
		Stages:      steps.KnowledgeStages(steps.Default()),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	orch, err := pipeline.New(pipeline.Options{
		Store:      be.store,
		Index:      index,
		Runner:     deps.runner,
		Tracker:    be.tracker,
		OnProgress: progressPrinter(out),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	res, err := orch.Run(ctx, in, deps.creds)
	if err != nil {
		if errors.Is(err, pipeline.ErrMissingReasoningKey) {
			return fmt.Errorf("%w (use --api-key or set %s)", err, config.APIKeyEnv(cfg.Provider))
		}
		return err
	}

	fmt.Fprintf(out, "\nRun %s completed in %s\n", res.RunID, res.Duration.Round(100*time.Millisecond))
	p := observability.NewPrinter(out)
	p.PrintArtifacts(res.Artifacts)
	if cfg.Verbose {
		printSummaries(p, res.Artifacts)
	}
	return nil
}

// progressPrinter prints the Step N/5 lines of a run.
func progressPrinter(out io.Writer) pipeline.ProgressCallback {
	return func(ev pipeline.ProgressEvent) {
		switch ev.Status {
		case pipeline.StatusStarted:
			fmt.Fprintln(out, ev.Message)
		case pipeline.StatusCompleted:
			fmt.Fprintf(out, "  ✓ %s\n", ev.Message)
		case pipeline.StatusFailed:
			fmt.Fprintf(out, "  ✗ %s\n", ev.Message)
		}
	}
}

// printSummaries prints a boxed summary of every artifact.
func printSummaries(p *observability.Printer, list []artifacts.Artifact) {
	for _, a := range list {
		printArtifact(p, a)
	}
}

func printArtifact(p *observability.Printer, a artifacts.Artifact) {
	switch a.Name {
	case artifacts.JobAnalysis:
		var v types.JobRequirements
		if json.Unmarshal(a.Content, &v) == nil {
			p.PrintJobAnalysis(&v)
		}
	case artifacts.ResumeOptimization:
		var v types.ResumeOptimization
		if json.Unmarshal(a.Content, &v) == nil {
			p.PrintOptimization(&v)
		}
	case artifacts.CompanyResearch:
		var v types.CompanyResearch
		if json.Unmarshal(a.Content, &v) == nil {
			p.PrintCompanyResearch(&v)
		}
	case artifacts.OptimizedResume:
		p.PrintMarkdown("OPTIMIZED RESUME", a.Content)
	case artifacts.FinalReport:
		p.PrintMarkdown("FINAL REPORT", a.Content)
	}
}

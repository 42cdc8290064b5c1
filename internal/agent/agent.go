// Package agent runs a single pipeline stage: it gathers tool output,
// document context and upstream artifacts into a prompt and asks the
// reasoning service for the stage's output.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/knowledge"
	"github.com/jonathan/resume-optimizer/internal/llm"
	"github.com/jonathan/resume-optimizer/internal/prompts"
	"github.com/jonathan/resume-optimizer/internal/schemas"
	"github.com/jonathan/resume-optimizer/internal/tools"
)

// DefaultDocumentChars is the document size up to which the whole document
// is placed in the prompt. Larger documents are searched instead.
const DefaultDocumentChars = 24000

// DefaultKnowledgeChunks is the number of chunks retrieved by a search.
const DefaultKnowledgeChunks = 8

// Knowledge describes how a stage reads the uploaded document.
type Knowledge struct {
	// Query is a template over run parameters used when the document is too
	// large to include whole.
	Query  string `yaml:"query"`
	Chunks int    `yaml:"chunks,omitempty"`
}

// Stage is a fully resolved stage descriptor.
type Stage struct {
	Name     string
	Artifact string
	Output   artifacts.Kind
	// Tools is the declared capability set.
	Tools       []tools.Name
	Invocations []tools.Invocation
	// Knowledge is nil for stages without document access.
	Knowledge *Knowledge
	Tier      llm.ModelTier
}

// Inputs are the run parameters and upstream artifacts for one stage.
type Inputs struct {
	Params    map[string]string
	Artifacts []artifacts.Artifact
}

// Result is the raw output of a stage and the sources its tools consulted.
type Result struct {
	Raw     string
	Sources []string
}

// Runner executes stages against a reasoning client and a tool box.
type Runner struct {
	Client        llm.Client
	Tools         *tools.Box
	DocumentChars int
	Logger        *slog.Logger
}

// NewRunner creates a runner. box may be nil for pipelines without tools.
func NewRunner(client llm.Client, box *tools.Box, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if box == nil {
		box = tools.NewBox(nil, nil, logger)
	}
	return &Runner{Client: client, Tools: box, DocumentChars: DefaultDocumentChars, Logger: logger}
}

// Run executes one stage and returns its raw, unvalidated output. handle is
// nil for stages without document access.
func (r *Runner) Run(ctx context.Context, stage Stage, in Inputs, handle *knowledge.Handle) (*Result, error) {
	persona, err := prompts.ForStage(stage.Name, in.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: load prompts: %w", stage.Name, err)
	}

	var sections []string
	var sources []string

	for _, inv := range stage.Invocations {
		out, err := r.Tools.Invoke(ctx, stage.Tools, inv, in.Params)
		if err != nil {
			input, _ := tools.Resolve(inv, in.Params)
			return nil, &ToolError{Stage: stage.Name, Tool: inv.Tool, Input: input, Cause: err}
		}
		sources = append(sources, out.Sources...)
		sections = append(sections, section(out.Label, untrusted(out.Label, out.Text)))
	}

	if stage.Knowledge != nil && handle != nil {
		doc, err := r.documentContext(ctx, stage, in.Params, handle)
		if err != nil {
			return nil, fmt.Errorf("%s: document context: %w", stage.Name, err)
		}
		sections = append(sections, section("Candidate resume", doc))
	}

	for _, a := range in.Artifacts {
		sections = append(sections, section("Upstream "+a.Name, strings.TrimSpace(string(a.Content))))
	}

	expected, err := expectedOutput(stage, persona.ExpectedOutput)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage.Name, err)
	}

	prompt := prompts.Format(prompts.MustGet(prompts.AgentFile, "stage-frame"), map[string]string{
		"Role":           persona.Role,
		"Goal":           persona.Goal,
		"Backstory":      persona.Backstory,
		"Task":           persona.Task,
		"Context":        strings.Join(sections, ""),
		"ExpectedOutput": expected,
	})

	tier := stage.Tier
	if tier == "" {
		tier = llm.TierAdvanced
	}

	r.Logger.Debug("invoking reasoning service",
		"stage", stage.Name, "model", r.Client.GetModel(tier), "prompt_chars", len(prompt), "sections", len(sections))

	start := time.Now()
	var raw string
	if stage.Output == artifacts.KindJSON {
		raw, err = r.Client.GenerateJSON(ctx, prompt, tier)
	} else {
		raw, err = r.Client.GenerateContent(ctx, prompt, tier)
	}
	if err != nil {
		return nil, &ServiceError{Stage: stage.Name, Model: r.Client.GetModel(tier), Cause: err}
	}

	r.Logger.Debug("reasoning service returned", "stage", stage.Name, "chars", len(raw), "elapsed", time.Since(start))
	return &Result{Raw: raw, Sources: sources}, nil
}

// documentContext returns the whole document when it fits the prompt budget
// and the best matching chunks otherwise.
func (r *Runner) documentContext(ctx context.Context, stage Stage, params map[string]string, h *knowledge.Handle) (string, error) {
	doc, err := h.Document(ctx)
	if err != nil {
		return "", err
	}
	if r.DocumentChars <= 0 || len(doc) <= r.DocumentChars || stage.Knowledge.Query == "" {
		return doc, nil
	}

	k := stage.Knowledge.Chunks
	if k <= 0 {
		k = DefaultKnowledgeChunks
	}
	query := prompts.Format(stage.Knowledge.Query, params)
	results, err := h.Search(ctx, query, k)
	if err != nil {
		return "", err
	}
	r.Logger.Debug("document searched", "stage", stage.Name, "query", query, "chunks", len(results))

	excerpts := make([]string, len(results))
	for i, res := range results {
		excerpts[i] = res.Text
	}
	return strings.Join(excerpts, "\n\n...\n\n"), nil
}

func expectedOutput(stage Stage, description string) (string, error) {
	if stage.Output != artifacts.KindJSON {
		return prompts.Format(prompts.MustGet(prompts.AgentFile, "text-output"), map[string]string{
			"Description": description,
		}), nil
	}
	schema, err := schemas.Raw(stage.Artifact)
	if err != nil {
		return "", err
	}
	return prompts.Format(prompts.MustGet(prompts.AgentFile, "json-output"), map[string]string{
		"Description": description,
		"Schema":      strings.TrimSpace(string(schema)),
	}), nil
}

func section(title, body string) string {
	return prompts.Format(prompts.MustGet(prompts.AgentFile, "context-section"), map[string]string{
		"Title": title,
		"Body":  body,
	})
}

func untrusted(label, content string) string {
	return prompts.Format(prompts.MustGet(prompts.AgentFile, "untrusted-content"), map[string]string{
		"Label":   strings.ToUpper(label),
		"Content": content,
	})
}

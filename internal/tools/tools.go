// Package tools is the capability set stages may invoke before reasoning:
// web search and page fetch.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jonathan/resume-optimizer/internal/fetch"
	"github.com/jonathan/resume-optimizer/internal/prompts"
	"github.com/jonathan/resume-optimizer/internal/research"
)

// Name identifies a tool capability.
type Name string

const (
	WebSearch Name = "web_search"
	PageFetch Name = "page_fetch"
	None      Name = "none"
)

// Valid reports whether n is a known capability.
func (n Name) Valid() bool {
	return n == WebSearch || n == PageFetch || n == None
}

var (
	// ErrNotDeclared is returned when a stage invokes a tool outside its
	// declared capability set.
	ErrNotDeclared = errors.New("tool not declared for stage")
	// ErrUnavailable is returned when no backend is configured for a tool.
	ErrUnavailable = errors.New("tool backend not configured")
	// ErrUnresolvedInput is returned when an invocation template references
	// a run parameter that does not exist.
	ErrUnresolvedInput = errors.New("unresolved tool input")
)

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]research.Hit, error)
}

// Fetcher fetches a page and returns its readable text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// JobPageFetcher adapts fetch.Fetcher to Fetcher with job board selectors.
type JobPageFetcher struct {
	*fetch.Fetcher
}

// Fetch implements Fetcher.
func (f JobPageFetcher) Fetch(ctx context.Context, url string) (*fetch.Page, error) {
	return f.Fetcher.Fetch(ctx, url, true)
}

// Invocation is one declared tool call. Input is a template over run
// parameters, e.g. "{{.job_url}}".
type Invocation struct {
	Tool  Name   `yaml:"tool" json:"tool"`
	Input string `yaml:"input" json:"input"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// Output is the result of one invocation, ready to be placed in a prompt.
type Output struct {
	Tool    Name
	Input   string
	Label   string
	Text    string
	Sources []string
}

// DefaultSearchResults is the number of hits requested per search.
const DefaultSearchResults = 5

// Box dispatches invocations to the configured backends.
type Box struct {
	Searcher      Searcher
	Fetcher       Fetcher
	SearchResults int
	Logger        *slog.Logger
}

// NewBox creates a tool box. Either backend may be nil.
func NewBox(searcher Searcher, fetcher Fetcher, logger *slog.Logger) *Box {
	if logger == nil {
		logger = slog.Default()
	}
	return &Box{Searcher: searcher, Fetcher: fetcher, SearchResults: DefaultSearchResults, Logger: logger}
}

// Resolve fills run parameters into an invocation's input.
func Resolve(inv Invocation, params map[string]string) (string, error) {
	input := strings.TrimSpace(prompts.Format(inv.Input, params))
	if missing := prompts.Missing(input); len(missing) > 0 {
		return input, fmt.Errorf("%w: %s", ErrUnresolvedInput, strings.Join(missing, ", "))
	}
	if input == "" {
		return input, fmt.Errorf("%w: empty input", ErrUnresolvedInput)
	}
	return input, nil
}

// Invoke runs inv if its tool is in declared. Backend failures are returned
// unchanged; the caller decides how to surface them.
func (b *Box) Invoke(ctx context.Context, declared []Name, inv Invocation, params map[string]string) (*Output, error) {
	if inv.Tool == None || !slices.Contains(declared, inv.Tool) {
		return nil, fmt.Errorf("%w: %s", ErrNotDeclared, inv.Tool)
	}
	input, err := Resolve(inv, params)
	if err != nil {
		return nil, err
	}

	out := &Output{Tool: inv.Tool, Input: input, Label: inv.Label}
	if out.Label == "" {
		out.Label = string(inv.Tool)
	}

	switch inv.Tool {
	case WebSearch:
		if b.Searcher == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, inv.Tool)
		}
		hits, err := b.Searcher.Search(ctx, input, b.SearchResults)
		if err != nil {
			return nil, err
		}
		out.Text = formatHits(hits)
		for _, h := range hits {
			out.Sources = append(out.Sources, h.URL)
		}
	case PageFetch:
		if b.Fetcher == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, inv.Tool)
		}
		page, err := b.Fetcher.Fetch(ctx, input)
		if err != nil {
			return nil, err
		}
		out.Text = formatPage(page)
		out.Sources = []string{page.URL}
	default:
		return nil, fmt.Errorf("unknown tool %q", inv.Tool)
	}

	b.Logger.Debug("tool invoked", "tool", inv.Tool, "input", input, "chars", len(out.Text))
	return out, nil
}

func formatHits(hits []research.Hit) string {
	if len(hits) == 0 {
		return "No results found."
	}
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, h.Title, h.URL)
		if h.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", strings.TrimSpace(h.Snippet))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatPage(p *fetch.Page) string {
	var sb strings.Builder
	if p.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", p.Title)
	}
	fmt.Fprintf(&sb, "URL: %s\n\n%s", p.URL, p.Text)
	return sb.String()
}

// Package research runs web searches for the company-research stage.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// DefaultResults is the number of hits requested per query.
const DefaultResults = 5

// maxResults is the Custom Search API page size limit.
const maxResults = 10

// Hit is one search result.
type Hit struct {
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Snippet  string  `json:"snippet"`
	Priority float64 `json:"-"`
}

// Researcher handles external company research over Google Custom Search.
type Researcher struct {
	svc    *customsearch.Service
	cx     string
	logger *slog.Logger
}

// NewResearcher creates a new Researcher instance. Extra client options are
// passed to the Custom Search service (endpoint overrides in tests).
func NewResearcher(ctx context.Context, apiKey, cx string, logger *slog.Logger, opts ...option.ClientOption) (*Researcher, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("search API key and engine ID are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &Researcher{svc: svc, cx: cx, logger: logger}, nil
}

// Search returns up to n hits for query, most relevant company pages first.
// Third-party job boards are dropped and duplicate links collapsed.
func (r *Researcher) Search(ctx context.Context, query string, n int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if n <= 0 {
		n = DefaultResults
	}

	resp, err := r.svc.Cse.List().Cx(r.cx).Q(query).Num(int64(min(n, maxResults))).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Items))
	for _, item := range resp.Items {
		hits = append(hits, Hit{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	ranked := Rank(hits)
	r.logger.Debug("web search", "query", query, "returned", len(resp.Items), "kept", len(ranked))
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// CompanyQueries returns the search queries used to research a company
// ahead of an interview.
func CompanyQueries(company string) []string {
	return []string{
		company + " recent news",
		company + " company values mission culture",
		company + " engineering blog",
		company + " interview process questions",
	}
}

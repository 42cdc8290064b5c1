package fetch

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// DefaultMaxChars caps the page text handed to a reasoning prompt.
const DefaultMaxChars = 20000

// Page is the readable content of one fetched URL.
type Page struct {
	URL      string
	Title    string
	Platform Platform
	Text     string
	Rendered bool
}

// Fetcher fetches pages over HTTP and falls back to a headless browser for
// pages that render client-side.
type Fetcher struct {
	Options  *Options
	Renderer Renderer
	MaxChars int
	Logger   *slog.Logger
}

// NewFetcher creates a fetcher. A nil renderer disables the browser fallback.
func NewFetcher(opts *Options, renderer Renderer, logger *slog.Logger) *Fetcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{Options: opts, Renderer: renderer, MaxChars: DefaultMaxChars, Logger: logger}
}

// Fetch returns the readable text of a page. When jobPosting is set,
// job board selectors are applied.
func (f *Fetcher) Fetch(ctx context.Context, url string, jobPosting bool) (*Page, error) {
	result, err := URL(ctx, url, f.Options)
	if err != nil {
		return nil, err
	}

	sel := SelectorsFor(url, jobPosting)
	text, err := ExtractMainText(result.HTML, sel.Content, sel.Noise...)
	if err != nil {
		return nil, &Error{URL: url, Message: "content extraction failed", Cause: err}
	}

	page := &Page{
		URL:      url,
		Title:    Title(result.HTML),
		Platform: DetectPlatform(url),
		Text:     text,
	}

	if f.Renderer != nil && ShouldUseBrowser(text) {
		f.Logger.Info("page content too short, rendering in browser", "url", url, "chars", len(text))
		html, rerr := f.Renderer.Render(ctx, url)
		if rerr != nil {
			f.Logger.Warn("browser rendering failed, using HTTP content", "url", url, "error", rerr)
		} else if rendered, xerr := ExtractMainText(html, sel.Content, sel.Noise...); xerr == nil && len(rendered) > len(text) {
			page.Text = rendered
			page.Rendered = true
			if t := Title(html); t != "" {
				page.Title = t
			}
		}
	}

	if page.Text == "" {
		return nil, &Error{URL: url, Message: "page has no readable text"}
	}
	page.Text = truncate(page.Text, f.MaxChars)

	f.Logger.Debug("fetched page", "url", url, "platform", page.Platform, "chars", len(page.Text), "rendered", page.Rendered)
	return page, nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

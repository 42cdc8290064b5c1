package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmlServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestURL_Success(t *testing.T) {
	srv := htmlServer(t, http.StatusOK, "<html><body><h1>Staff Engineer</h1></body></html>")

	result, err := URL(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Staff Engineer</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestURL_InvalidURL(t *testing.T) {
	for _, u := range []string{"not-a-valid-url", "ftp://example.com/job"} {
		_, err := URL(context.Background(), u, nil)
		var fetchErr *Error
		require.ErrorAs(t, err, &fetchErr)
		assert.Contains(t, err.Error(), "invalid URL")
	}
}

func TestURL_HTTPError(t *testing.T) {
	srv := htmlServer(t, http.StatusNotFound, "gone")

	result, err := URL(context.Background(), srv.URL, nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestURL_MaxBytes(t *testing.T) {
	srv := htmlServer(t, http.StatusOK, strings.Repeat("a", 100))

	opts := DefaultOptions()
	opts.MaxBytes = 10
	result, err := URL(context.Background(), srv.URL, opts)
	require.NoError(t, err)
	assert.Len(t, result.HTML, 10)
}

func TestExtractMainText_RemovesChrome(t *testing.T) {
	html := `<html><body>
		<nav>Navigation</nav>
		<main><h1>Main Content</h1><p>This is the important text.</p><ul><li>Go</li><li>SQL</li></ul></main>
		<footer>Footer</footer>
	</body></html>`

	text, err := ExtractMainText(html, DefaultTextSelectors())
	require.NoError(t, err)
	assert.Equal(t, "Main Content\nThis is the important text.\nGo\nSQL", text)
}

func TestExtractMainText_FallbackToBody(t *testing.T) {
	text, err := ExtractMainText(`<html><body><span>Some content here.</span></body></html>`, DefaultTextSelectors())
	require.NoError(t, err)
	assert.Equal(t, "Some content here.", text)
}

func TestExtractMainText_NoiseSelectors(t *testing.T) {
	html := `<html><body>
		<div class="job-description"><h2>Requirements</h2><p>5 years of Go</p>
		<div class="eeo-statement">Equal opportunity employer</div></div>
	</body></html>`

	text, err := ExtractMainText(html, JobPostingSelectors(), PlatformNoiseSelectors(PlatformUnknown)...)
	require.NoError(t, err)
	assert.Contains(t, text, "5 years of Go")
	assert.NotContains(t, text, "Equal opportunity")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Acme Careers", Title(`<html><head><title> Acme Careers </title></head></html>`))
	assert.Equal(t, "Backend Engineer", Title(`<html><body><h1>Backend Engineer</h1></body></html>`))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b\nc", CleanText("  a \t b \r\n\r\n\n c  "))
	assert.Equal(t, "", CleanText(" \n \n"))
}

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (f *fakeRenderer) Render(context.Context, string) (string, error) {
	f.calls++
	return f.html, f.err
}

func TestFetcher_UsesBrowserForThinPages(t *testing.T) {
	srv := htmlServer(t, http.StatusOK, `<html><body><div id="root">Loading...</div></body></html>`)
	rendered := `<html><head><title>Platform Engineer</title></head><body><main>` +
		strings.Repeat("<p>Design and operate distributed systems.</p>", 20) + `</main></body></html>`
	r := &fakeRenderer{html: rendered}

	page, err := NewFetcher(nil, r, nil).Fetch(context.Background(), srv.URL, true)
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.True(t, page.Rendered)
	assert.Equal(t, "Platform Engineer", page.Title)
	assert.Contains(t, page.Text, "distributed systems")
}

func TestFetcher_BrowserFailureKeepsHTTPText(t *testing.T) {
	srv := htmlServer(t, http.StatusOK, `<html><body><main>Short posting</main></body></html>`)
	r := &fakeRenderer{err: errors.New("chrome not installed")}

	page, err := NewFetcher(nil, r, nil).Fetch(context.Background(), srv.URL, true)
	require.NoError(t, err)
	assert.False(t, page.Rendered)
	assert.Equal(t, "Short posting", page.Text)
}

func TestFetcher_TruncatesAndRejectsEmpty(t *testing.T) {
	srv := htmlServer(t, http.StatusOK, `<html><body><main>`+strings.Repeat("word ", 100)+`</main></body></html>`)
	f := NewFetcher(nil, nil, nil)
	f.MaxChars = 20

	page, err := f.Fetch(context.Background(), srv.URL, false)
	require.NoError(t, err)
	assert.Len(t, page.Text, 20)

	empty := htmlServer(t, http.StatusOK, `<html><body><script>app()</script></body></html>`)
	_, err = f.Fetch(context.Background(), empty.URL, false)
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "no readable text")
}

func TestTruncate_KeepsValidUTF8(t *testing.T) {
	assert.Equal(t, "h", truncate("hé", 2))
	assert.Equal(t, "abc", truncate("abc", 0))
}

package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestResearcher(t *testing.T, handler http.HandlerFunc) *Researcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r, err := NewResearcher(context.Background(), "test-key", "engine-1", nil,
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return r
}

func TestNewResearcher_RequiresCredentials(t *testing.T) {
	_, err := NewResearcher(context.Background(), "", "cx", nil)
	assert.Error(t, err)
	_, err = NewResearcher(context.Background(), "key", "", nil)
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	r := newTestResearcher(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "engine-1", req.URL.Query().Get("cx"))
		assert.Equal(t, "Acme culture", req.URL.Query().Get("q"))
		assert.Equal(t, "2", req.URL.Query().Get("num"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Acme jobs","link":"https://jobs.lever.co/acme","snippet":"Open roles"},
			{"title":"About Acme","link":"https://acme.com/about","snippet":"Who we are"},
			{"title":"Acme values","link":"https://acme.com/values","snippet":"What we believe"}
		]}`))
	})

	hits, err := r.Search(context.Background(), " Acme culture ", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://acme.com/values", hits[0].URL)
	assert.Equal(t, "About Acme", hits[1].Title)
	assert.Equal(t, "Who we are", hits[1].Snippet)
}

func TestSearch_APIError(t *testing.T) {
	r := newTestResearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota exceeded"}}`))
	})

	_, err := r.Search(context.Background(), "Acme", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}

func TestSearch_EmptyQuery(t *testing.T) {
	r := newTestResearcher(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := r.Search(context.Background(), "  ", 5)
	assert.Error(t, err)
}

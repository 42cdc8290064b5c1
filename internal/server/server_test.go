package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-optimizer/internal/agent"
	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/config"
	"github.com/jonathan/resume-optimizer/internal/fetch"
	"github.com/jonathan/resume-optimizer/internal/llm/llmtest"
	"github.com/jonathan/resume-optimizer/internal/research"
	"github.com/jonathan/resume-optimizer/internal/server/ratelimit"
	"github.com/jonathan/resume-optimizer/internal/tools"
	"github.com/jonathan/resume-optimizer/internal/types"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url string) (*fetch.Page, error) {
	return &fetch.Page{URL: url, Title: "Platform Engineer", Text: "Acme needs Go."}, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, query string, _ int) ([]research.Hit, error) {
	return []research.Hit{{Title: query, URL: "https://acme.example.com"}}, nil
}

func scriptedLLM() *llmtest.Client {
	return llmtest.New().
		On("You are the Job Requirements Analyst", `{
			"job_title": "Platform Engineer",
			"technical_skills": ["Go"],
			"key_responsibilities": ["Run the platform"],
			"match_score": {"overall_match": 64, "technical_skills_match": 70, "experience_match": 60,
				"education_match": 80, "industry_match": 40, "strengths": ["Go"], "gaps": ["Rust"]}
		}`).
		On("You are the Resume Optimization Expert", `{
			"content_suggestions": [{"section": "Summary", "suggestion": "Lead with platform work"}],
			"skills_to_highlight": ["Go"], "keywords_for_ats": ["platform"]
		}`).
		On("You are the Company Research Specialist", `{
			"recent_developments": ["Opened a Berlin office"],
			"culture_and_values": ["Craft"],
			"interview_questions": ["Why Acme?"]
		}`).
		On("You are the Resume Writer", "# Jane Doe\n\nPlatform engineer.\n").
		On("You are the Career Report Generator", "# Report\n\nMatch: 64\n")
}

type testServer struct {
	*Server
	store *artifacts.FileStore
}

func newTestServer(t *testing.T, client *llmtest.Client, mutate func(*Config)) *testServer {
	t.Helper()
	store, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := Config{
		Store:    store,
		IndexDir: t.TempDir(),
		Runner: func(context.Context, types.Credentials) (*agent.Runner, error) {
			return agent.NewRunner(client, tools.NewBox(stubSearcher{}, stubFetcher{}, nil), nil), nil
		},
		RateLimit: &ratelimit.Config{Enabled: false},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &testServer{Server: s, store: store}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func runRequest(t *testing.T, path string, fields map[string]string, resume []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if resume != nil {
		fw, err := mw.CreateFormFile("resume", "resume.txt")
		require.NoError(t, err)
		_, err = fw.Write(resume)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var acmeFields = map[string]string{"job_url": "https://jobs.example.com/acme/1", "company": "Acme"}

func resumeBytes() []byte {
	return []byte(strings.Repeat("Jane Doe built Go platforms on Kubernetes.\n", 40))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRun_WritesArtifacts(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), nil)

	rec := ts.do(runRequest(t, "/runs", acmeFields, resumeBytes()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Len(t, resp.Fingerprint, 64)
	require.Len(t, resp.Artifacts, 5)
	assert.Equal(t, artifacts.FinalReport, resp.Artifacts[4].Name)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/artifacts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Artifacts []ArtifactInfo `json:"artifacts"`
		Complete  bool           `json:"complete"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.True(t, list.Complete)
	assert.Len(t, list.Artifacts, 5)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/artifacts/job_analysis", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "job-analysis", rec.Header().Get("X-Artifact-Stage"))
	assert.Contains(t, rec.Body.String(), `"overall_match": 64`)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/artifacts/optimized_resume", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "# Jane Doe")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `resume_stage_runs_total{stage="report-generation",status="success"} 1`)
}

func TestRun_ReportsEveryMissingField(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), nil)

	rec := ts.do(runRequest(t, "/runs", map[string]string{"job_url": "https://jobs.example.com/1"}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"document", "company_name"}, body.Fields)
}

func TestRun_NotMultipart(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), nil)
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{"job_url": "x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRun_StageFailure(t *testing.T) {
	client := llmtest.New().Fail("You are the Job Requirements Analyst", errors.New("quota exceeded"))
	ts := newTestServer(t, client, nil)

	rec := ts.do(runRequest(t, "/runs", acmeFields, resumeBytes()))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "job-analysis", body.Stage)
	assert.Contains(t, body.Error, "quota exceeded")
	assert.False(t, ts.busy.Load(), "guard is released after a failed run")
}

func TestBusyGuard(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), nil)
	require.True(t, ts.acquire())

	rec := ts.do(runRequest(t, "/runs", acmeFields, resumeBytes()))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(runRequest(t, "/runs/stream", acmeFields, resumeBytes()))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/artifacts", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/runs/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Processing)

	ts.release()
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/runs/current", nil))
	assert.JSONEq(t, `{"processing":false}`, rec.Body.String())
}

func TestRunStream(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), nil)

	rec := ts.do(runRequest(t, "/runs/stream", acmeFields, resumeBytes()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 12, strings.Count(body, "event: progress\n"))
	assert.Contains(t, body, `"stage":"company-research"`)
	assert.Contains(t, body, "event: complete\n")
	assert.NotContains(t, body, "event: error\n")
}

func TestRunStream_Failure(t *testing.T) {
	client := llmtest.New().
		On("You are the Job Requirements Analyst", `{"job_title": "x"}`)
	ts := newTestServer(t, client, nil)

	rec := ts.do(runRequest(t, "/runs/stream", acmeFields, resumeBytes()))
	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `"stage":"job-analysis"`)
	assert.NotContains(t, body, "event: complete\n")
}

func TestGetArtifact_NotFound(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/artifacts/passwords", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/artifacts/final_report", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/artifacts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"complete":false`)
}

func TestClearArtifacts(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), nil)
	a := artifacts.New(artifacts.FinalReport, "report-generation", "1", artifacts.KindText, []byte("# Old\n"))
	require.NoError(t, ts.store.Put(context.Background(), a))

	rec := ts.do(httptest.NewRequest(http.MethodDelete, "/artifacts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ok, err := ts.store.Exists(context.Background(), artifacts.FinalReport)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuth(t *testing.T) {
	jwtCfg := &config.JWTConfig{Secret: testJWTSecret, ExpirationHours: 1, Issuer: config.DefaultJWTIssuer}
	ts := newTestServer(t, scriptedLLM(), func(c *Config) { c.JWT = jwtCfg })

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/artifacts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "metrics stay public")

	token, err := NewJWTService(jwtCfg).GenerateToken("ops")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/artifacts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, scriptedLLM(), func(c *Config) {
		c.RateLimit = &ratelimit.Config{Enabled: true, DefaultLimit: 2, DefaultWindow: time.Hour}
	})

	for i := 0; i < 2; i++ {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/runs/current", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/runs/current", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is never limited")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{IndexDir: t.TempDir()})
	assert.Error(t, err)
}

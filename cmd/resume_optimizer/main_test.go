package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/config"
	"github.com/jonathan/resume-optimizer/internal/pipeline"
	"github.com/jonathan/resume-optimizer/internal/server"
)

// cliEnv isolates a test from credentials in the environment or a .env file.
type cliEnv struct {
	outputDir string
	indexDir  string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "OPENAI_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY",
		"GOOGLE_SEARCH_API_KEY", "GOOGLE_SEARCH_CX", "JWT_SECRET", "JWT_EXPIRATION_HOURS"} {
		t.Setenv(key, "")
	}
	return cliEnv{outputDir: t.TempDir(), indexDir: t.TempDir()}
}

func (e cliEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(args, "--output-dir", e.outputDir, "--index-dir", e.indexDir))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func (e cliEnv) seed(t *testing.T, names ...string) *artifacts.FileStore {
	t.Helper()
	store, err := artifacts.NewFileStore(e.outputDir)
	require.NoError(t, err)
	for _, name := range names {
		var a artifacts.Artifact
		switch name {
		case artifacts.JobAnalysis:
			a = artifacts.New(name, "job-analysis", "1", artifacts.KindJSON,
				[]byte(`{"job_title":"Platform Engineer","technical_skills":["Go"],"match_score":{"overall_match":64}}`))
		default:
			a = artifacts.New(name, "report-generation", "1", artifacts.KindText, []byte("# Report\n\nMatch: 64\n"))
		}
		require.NoError(t, store.Put(context.Background(), a))
	}
	return store
}

func writeResume(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resume.txt")
	require.NoError(t, os.WriteFile(path, []byte("Jane Doe\nPlatform engineer with Go experience.\n"), 0o644))
	return path
}

func TestRunCommand_ReportsEveryMissingInput(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "run")

	var inputErr *pipeline.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, []string{"document", "job_url", "company_name"}, inputErr.Fields)
}

func TestRunCommand_MissingAPIKey(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "run",
		"--job-url", "https://jobs.example.com/acme/1",
		"--company", "Acme",
		"--resume", writeResume(t))

	require.ErrorIs(t, err, pipeline.ErrMissingReasoningKey)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestRunCommand_MissingResumeFile(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "run",
		"--job-url", "https://jobs.example.com/acme/1",
		"--company", "Acme",
		"--resume", filepath.Join(t.TempDir(), "nope.pdf"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume file not found")
}

func TestRunCommand_RejectsUnknownProvider(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "run", "--provider", "mystery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestResolve_FlagsOverrideConfigFile(t *testing.T) {
	newCLIEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"company": "FileCo",
		"job_url": "https://jobs.example.com/file",
		"provider": "gemini",
		"chunk_tokens": 200
	}`), 0o644))

	cmd := newRootCmd()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, run.ParseFlags([]string{"--company", "FlagCo"}))

	g := &globalFlags{configPath: path}
	got, err := g.resolve(run, func(c *config.Config) {
		if run.Flags().Changed("company") {
			c.Company = "FlagCo"
		}
	})
	require.NoError(t, err)

	assert.Equal(t, "FlagCo", got.Company)
	assert.Equal(t, "https://jobs.example.com/file", got.JobURL)
	assert.Equal(t, "gemini", got.Provider)
	assert.Equal(t, 200, got.ChunkTokens)
	assert.Equal(t, config.DefaultOutputDir, got.OutputDir)
	assert.Equal(t, config.DefaultIndexDir, got.IndexDir)
}

func TestArtifactsList(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t, artifacts.JobAnalysis)

	out, err := env.execute(t, "artifacts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ARTIFACTS (1/5)")
	assert.Contains(t, out, "✓ job_analysis")
	assert.Contains(t, out, "✗ final_report")
	assert.Contains(t, out, "Results are incomplete")
}

func TestArtifactsShow(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t, artifacts.JobAnalysis, artifacts.FinalReport)

	out, err := env.execute(t, "artifacts", "show", artifacts.JobAnalysis)
	require.NoError(t, err)
	assert.Contains(t, out, "JOB ANALYSIS")
	assert.Contains(t, out, "Platform Engineer")

	out, err = env.execute(t, "artifacts", "show", artifacts.FinalReport, "--raw")
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nMatch: 64\n", out)

	_, err = env.execute(t, "artifacts", "show", artifacts.CompanyResearch)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)

	_, err = env.execute(t, "artifacts", "show", "secrets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown artifact")
}

func TestArtifactsClear(t *testing.T) {
	env := newCLIEnv(t)
	store := env.seed(t, artifacts.JobAnalysis, artifacts.FinalReport)

	out, err := env.execute(t, "artifacts", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Artifacts cleared.")

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClean(t *testing.T) {
	env := newCLIEnv(t)
	store := env.seed(t, artifacts.FinalReport)
	stale := filepath.Join(env.indexDir, "knowledge-3.db")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	out, err := env.execute(t, "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "Knowledge index and artifacts cleared.")

	assert.NoFileExists(t, stale)
	ok, err := store.Exists(context.Background(), artifacts.FinalReport)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestToken(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "token")
	require.Error(t, err, "JWT_SECRET is required")

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	out, err := env.execute(t, "token", "--subject", "deploy-bot")
	require.NoError(t, err)

	jwtCfg, err := config.NewJWTConfig()
	require.NoError(t, err)
	claims, err := server.NewJWTService(jwtCfg).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "deploy-bot", claims.Subject)
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf)
	p(pipeline.ProgressEvent{Stage: "job-analysis", Status: pipeline.StatusStarted, Message: "Step 1/5: job-analysis"})
	p(pipeline.ProgressEvent{Stage: "job-analysis", Status: pipeline.StatusCompleted, Message: "Wrote job_analysis"})
	p(pipeline.ProgressEvent{Stage: "resume-optimization", Status: pipeline.StatusFailed, Message: "quota exceeded"})

	assert.Equal(t, "Step 1/5: job-analysis\n  ✓ Wrote job_analysis\n  ✗ quota exceeded\n", buf.String())
}

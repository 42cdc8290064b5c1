package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stageNames = []string{
	"job-analysis",
	"resume-optimization",
	"company-research",
	"resume-generation",
	"report-generation",
}

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get(AgentFile, "stage-frame")
	require.NoError(t, err)
	assert.Contains(t, prompt, "{{.Role}}")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get(StagesFile, "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestFormat(t *testing.T) {
	template := "Hello {{.Name}}, welcome to {{.Company}}!"
	data := map[string]string{
		"Name":    "Alice",
		"Company": "Acme Corp",
	}

	assert.Equal(t, "Hello Alice, welcome to Acme Corp!", Format(template, data))
}

func TestFormat_EmptyData(t *testing.T) {
	assert.Equal(t, "Hello {{.Name}}", Format("Hello {{.Name}}", map[string]string{}))
}

func TestMissing(t *testing.T) {
	assert.Equal(t, []string{"company_name", "job_url"}, Missing("{{.job_url}} at {{.company_name}} via {{.job_url}}"))
	assert.Empty(t, Missing("nothing to fill"))
}

func TestForStage_AllStagesComplete(t *testing.T) {
	ClearCache()
	params := map[string]string{"job_url": "https://jobs.example.com/1", "company_name": "Acme"}

	for _, name := range stageNames {
		t.Run(name, func(t *testing.T) {
			s, err := ForStage(name, params)
			require.NoError(t, err)
			for _, text := range []string{s.Role, s.Goal, s.Backstory, s.Task, s.ExpectedOutput} {
				assert.NotEmpty(t, strings.TrimSpace(text))
				assert.Empty(t, Missing(text), "unresolved placeholder in %s", name)
			}
		})
	}
}

func TestForStage_Unknown(t *testing.T) {
	_, err := ForStage("unknown-stage", nil)
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List(StagesFile)
	require.NoError(t, err)
	assert.Len(t, keys, len(stageNames)*5)
	assert.Contains(t, keys, "company-research.task")
}

func TestCaching(t *testing.T) {
	ClearCache()

	prompt1, err := Get(AgentFile, "json-output")
	require.NoError(t, err)
	prompt2, err := Get(AgentFile, "json-output")
	require.NoError(t, err)

	assert.Equal(t, prompt1, prompt2)
}

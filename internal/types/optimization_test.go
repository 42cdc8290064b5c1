package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentSuggestion_UnmarshalShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ContentSuggestion
	}{
		{
			name:  "current shape",
			input: `{"section": "Summary", "suggestion": "Lead with impact", "original_text": "Hard worker"}`,
			expected: ContentSuggestion{
				Section: "Summary", Suggestion: "Lead with impact", OriginalText: "Hard worker",
			},
		},
		{
			name:  "before and after",
			input: `{"section": "Experience", "before": "Did stuff", "after": "Cut p99 by 30%", "rationale": "Quantify"}`,
			expected: ContentSuggestion{
				Section: "Experience", Suggestion: "Cut p99 by 30%", OriginalText: "Did stuff", Rationale: "Quantify",
			},
		},
		{
			name:     "plain string",
			input:    `"Add a projects section"`,
			expected: ContentSuggestion{Section: GeneralSection, Suggestion: "Add a projects section"},
		},
		{
			name:     "missing section",
			input:    `{"suggestion": "Tighten wording"}`,
			expected: ContentSuggestion{Section: GeneralSection, Suggestion: "Tighten wording"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ContentSuggestion
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestContentSuggestion_RejectsOtherTypes(t *testing.T) {
	var got ContentSuggestion
	assert.Error(t, json.Unmarshal([]byte(`42`), &got))
}

func TestResumeOptimization_MarshalsCanonicalShape(t *testing.T) {
	var opt ResumeOptimization
	require.NoError(t, json.Unmarshal([]byte(`{
		"content_suggestions": [{"section": "Skills", "before": "Go", "after": "Go, gRPC", "rationale": "ATS"}],
		"keywords_for_ats": ["gRPC"]
	}`), &opt))

	out, err := json.Marshal(opt)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"suggestion":"Go, gRPC"`)
	assert.Contains(t, string(out), `"original_text":"Go"`)
	assert.NotContains(t, string(out), `"after"`)
}

func TestRunInputs_Params(t *testing.T) {
	in := RunInputs{JobURL: "https://example.com/job/1", CompanyName: "Acme", Document: []byte("x"), DocumentName: "cv.pdf"}
	p := in.Params()
	assert.Equal(t, "Acme", p["company_name"])
	assert.Equal(t, "https://example.com/job/1", p["job_url"])
	assert.Equal(t, "cv.pdf", p["document_name"])
}

package types

import (
	"encoding/json"
	"fmt"
)

// GeneralSection is the section assigned to suggestions that arrive without one.
const GeneralSection = "General"

// ResumeOptimization is the record produced by the resume-optimization stage.
type ResumeOptimization struct {
	ContentSuggestions    []ContentSuggestion `json:"content_suggestions" validate:"dive"`
	SkillsToHighlight     []string            `json:"skills_to_highlight"`
	AchievementsToAdd     []string            `json:"achievements_to_add"`
	KeywordsForATS        []string            `json:"keywords_for_ats"`
	FormattingSuggestions []string            `json:"formatting_suggestions"`
}

// ContentSuggestion is the canonical form of a single resume edit.
//
// Reasoning output arrives in one of three shapes, all decoded into this one:
//
//	{"section": "...", "suggestion": "...", "original_text": "..."}
//	{"section": "...", "before": "...", "after": "...", "rationale": "..."}
//	"plain suggestion text"
type ContentSuggestion struct {
	Section      string `json:"section" validate:"required"`
	Suggestion   string `json:"suggestion" validate:"required"`
	OriginalText string `json:"original_text,omitempty"`
	Rationale    string `json:"rationale,omitempty"`
}

// rawSuggestion is the union of every field any accepted shape may carry.
type rawSuggestion struct {
	Section      string `json:"section"`
	Suggestion   string `json:"suggestion"`
	OriginalText string `json:"original_text"`
	Before       string `json:"before"`
	After        string `json:"after"`
	Rationale    string `json:"rationale"`
}

// UnmarshalJSON normalizes every accepted suggestion shape into the canonical one.
func (s *ContentSuggestion) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = ContentSuggestion{Section: GeneralSection, Suggestion: text}
		return nil
	}

	var raw rawSuggestion
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("content suggestion must be an object or a string: %w", err)
	}

	out := ContentSuggestion{
		Section:      raw.Section,
		Suggestion:   raw.Suggestion,
		OriginalText: raw.OriginalText,
		Rationale:    raw.Rationale,
	}
	// before/after shape
	if out.Suggestion == "" && raw.After != "" {
		out.Suggestion = raw.After
	}
	if out.OriginalText == "" && raw.Before != "" {
		out.OriginalText = raw.Before
	}
	if out.Section == "" && out.Suggestion != "" {
		out.Section = GeneralSection
	}
	*s = out
	return nil
}

package types

// CompanyResearch is the record produced by the company-research stage.
type CompanyResearch struct {
	RecentDevelopments []string `json:"recent_developments"`
	CultureAndValues   []string `json:"culture_and_values"`
	InterviewQuestions []string `json:"interview_questions"`
	Sources            []string `json:"sources,omitempty"`
}

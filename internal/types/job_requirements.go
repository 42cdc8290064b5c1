package types

// JobRequirements is the record produced by the job-analysis stage.
type JobRequirements struct {
	JobTitle               string               `json:"job_title" validate:"required"`
	JobLevel               string               `json:"job_level,omitempty"`
	LocationRequirements   LocationRequirements `json:"location_requirements"`
	Compensation           Compensation         `json:"compensation"`
	TechnicalSkills        []string             `json:"technical_skills"`
	SoftSkills             []string             `json:"soft_skills"`
	KeyResponsibilities    []string             `json:"key_responsibilities"`
	EducationRequirements  []string             `json:"education_requirements"`
	ExperienceRequirements []string             `json:"experience_requirements"`
	Industry               string               `json:"industry,omitempty"`
	MatchScore             MatchScore           `json:"match_score"`
}

// LocationRequirements describes where the role is based
type LocationRequirements struct {
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country,omitempty"`
	RemotePolicy string `json:"remote_policy,omitempty"`
}

// Compensation describes the advertised pay package
type Compensation struct {
	BaseSalary string   `json:"base_salary,omitempty"`
	Bonus      string   `json:"bonus,omitempty"`
	Equity     string   `json:"equity,omitempty"`
	Benefits   []string `json:"benefits,omitempty"`
}

// MatchScore rates how well the candidate fits the posting. Every score is on a 0-100 scale.
type MatchScore struct {
	OverallMatch         float64  `json:"overall_match" validate:"gte=0,lte=100"`
	TechnicalSkillsMatch float64  `json:"technical_skills_match" validate:"gte=0,lte=100"`
	ExperienceMatch      float64  `json:"experience_match" validate:"gte=0,lte=100"`
	EducationMatch       float64  `json:"education_match" validate:"gte=0,lte=100"`
	IndustryMatch        float64  `json:"industry_match" validate:"gte=0,lte=100"`
	Strengths            []string `json:"strengths"`
	Gaps                 []string `json:"gaps"`
}

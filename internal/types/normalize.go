package types

// Normalize replaces nil lists with empty ones so the record encodes every
// list field as an array.
func (r *JobRequirements) Normalize() {
	lists(&r.TechnicalSkills, &r.SoftSkills, &r.KeyResponsibilities,
		&r.EducationRequirements, &r.ExperienceRequirements,
		&r.MatchScore.Strengths, &r.MatchScore.Gaps)
}

// Normalize replaces nil lists with empty ones.
func (r *ResumeOptimization) Normalize() {
	if r.ContentSuggestions == nil {
		r.ContentSuggestions = []ContentSuggestion{}
	}
	lists(&r.SkillsToHighlight, &r.AchievementsToAdd, &r.KeywordsForATS, &r.FormattingSuggestions)
}

// Normalize replaces nil lists with empty ones. Sources stays omitted when
// nothing was cited.
func (r *CompanyResearch) Normalize() {
	lists(&r.RecentDevelopments, &r.CultureAndValues, &r.InterviewQuestions)
}

// AddSources appends urls not already cited, keeping first-seen order.
func (r *CompanyResearch) AddSources(urls ...string) {
	seen := make(map[string]struct{}, len(r.Sources)+len(urls))
	for _, u := range r.Sources {
		seen[u] = struct{}{}
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		r.Sources = append(r.Sources, u)
	}
}

func lists(ss ...*[]string) {
	for _, s := range ss {
		if *s == nil {
			*s = []string{}
		}
	}
}

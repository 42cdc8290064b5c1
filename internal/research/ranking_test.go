package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainOf(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"Simple URL", "https://doordash.com", "doordash.com"},
		{"URL with www", "https://www.doordash.com", "doordash.com"},
		{"URL with path", "https://careers.doordash.com/jobs", "careers.doordash.com"},
		{"URL without scheme", "doordash.com", "doordash.com"},
		{"Empty URL", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domainOf(tt.url))
		})
	}
}

func TestAssignPathPriority(t *testing.T) {
	tests := []struct {
		name            string
		url             string
		expectedMinimum float64
	}{
		{"Mission and values", "https://careers.doordash.com/mission-and-values", 0.9},
		{"Values page", "https://company.com/values", 0.9},
		{"Culture page", "https://company.com/culture", 0.8},
		{"About page", "https://company.com/about", 0.8},
		{"Engineering blog", "https://company.com/engineering", 0.8},
		{"Newsroom", "https://company.com/news/2026", 0.7},
		{"Product page", "https://doordash.com/p/alcohol-delivery", 0.0},
		{"Generic page", "https://doordash.com/page", 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priority := AssignPathPriority(tt.url)
			assert.GreaterOrEqual(t, priority, tt.expectedMinimum,
				"URL %s should have priority >= %.2f, got %.2f", tt.url, tt.expectedMinimum, priority)
		})
	}
	assert.Less(t, AssignPathPriority("https://doordash.com/catering-near-me"), 0.5)
}

func TestIsThirdParty(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{"Greenhouse", "https://job-boards.greenhouse.io/doordash", true},
		{"Lever", "https://jobs.lever.co/company", true},
		{"Ashby", "https://jobs.ashbyhq.com/acme", true},
		{"Getcovey", "https://getcovey.com/product", true},
		{"Company domain", "https://doordash.com/about", false},
		{"Careers subdomain", "https://careers.doordash.com", false},
		{"Lookalike", "https://notlever.company.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsThirdParty(tt.url))
		})
	}
}

func TestRank(t *testing.T) {
	hits := []Hit{
		{Title: "Shop", URL: "https://acme.com/p/widget"},
		{Title: "Jobs", URL: "https://boards.greenhouse.io/acme"},
		{Title: "Home", URL: "https://acme.com"},
		{Title: "Values", URL: "https://acme.com/values"},
		{Title: "Values again", URL: "https://acme.com/values/"},
		{Title: "News", URL: "https://acme.com/news"},
	}

	ranked := Rank(hits)

	var urls []string
	for _, h := range ranked {
		urls = append(urls, h.URL)
	}
	assert.Equal(t, []string{
		"https://acme.com/values",
		"https://acme.com/news",
		"https://acme.com",
		"https://acme.com/p/widget",
	}, urls)
	assert.InDelta(t, 0.95, ranked[0].Priority, 1e-9)
}

func TestCompanyQueries(t *testing.T) {
	queries := CompanyQueries("Acme")
	assert.NotEmpty(t, queries)
	for _, q := range queries {
		assert.Contains(t, q, "Acme")
	}
}

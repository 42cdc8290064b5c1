package research

import (
	"net/url"
	"sort"
	"strings"
)

var thirdPartyDomains = []string{
	"greenhouse.io",
	"lever.co",
	"workday.com",
	"myworkdayjobs.com",
	"ashbyhq.com",
	"indeed.com",
	"ziprecruiter.com",
	"getcovey.com",
}

// IsThirdParty checks if a URL is from a known job board or aggregator.
func IsThirdParty(urlStr string) bool {
	domain := domainOf(urlStr)
	if domain == "" {
		return false
	}
	for _, d := range thirdPartyDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// AssignPathPriority returns a relevance priority based on URL path patterns.
func AssignPathPriority(urlStr string) float64 {
	urlLower := strings.ToLower(urlStr)

	for _, pattern := range []string{
		"leadership-principles", "values", "mission-and-values",
		"mission", "principles", "culture-memo", "our-values",
	} {
		if strings.Contains(urlLower, pattern) {
			return 0.95
		}
	}

	for _, pattern := range []string{
		"culture", "about", "careers", "engineering", "interview",
		"who-we-are", "our-story", "team",
	} {
		if strings.Contains(urlLower, pattern) {
			return 0.85
		}
	}

	for _, pattern := range []string{"press", "news", "announcements", "blog"} {
		if strings.Contains(urlLower, pattern) {
			return 0.7
		}
	}

	for _, pattern := range []string{
		"/p/", "/product/", "/catering", "/delivery", "/stores", "/near-me", "/order",
	} {
		if strings.Contains(urlLower, pattern) {
			return 0.1
		}
	}

	return 0.5
}

// Rank drops third-party and duplicate links and orders the rest by path
// priority. Equal priorities keep search engine order.
func Rank(hits []Hit) []Hit {
	seen := make(map[string]bool, len(hits))
	kept := make([]Hit, 0, len(hits))
	for _, h := range hits {
		key := strings.TrimSuffix(h.URL, "/")
		if h.URL == "" || seen[key] || IsThirdParty(h.URL) {
			continue
		}
		seen[key] = true
		h.Priority = AssignPathPriority(h.URL)
		kept = append(kept, h)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Priority > kept[j].Priority })
	return kept
}

// domainOf extracts the host from a URL without a leading "www.".
func domainOf(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

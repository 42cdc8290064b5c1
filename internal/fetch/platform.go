// Package fetch - platform.go provides job board detection and board-specific selectors.
package fetch

import (
	"net/url"
	"strings"
)

// Platform represents a known job board platform.
type Platform string

const (
	PlatformGreenhouse Platform = "greenhouse"
	PlatformLever      Platform = "lever"
	PlatformWorkday    Platform = "workday"
	PlatformAshby      Platform = "ashby"
	PlatformLinkedIn   Platform = "linkedin"
	PlatformUnknown    Platform = "unknown"
)

// hostPlatforms maps host suffixes to platforms, checked in order.
var hostPlatforms = []struct {
	suffix   string
	platform Platform
}{
	{"greenhouse.io", PlatformGreenhouse},
	{"lever.co", PlatformLever},
	{"myworkdayjobs.com", PlatformWorkday},
	{"workday.com", PlatformWorkday},
	{"ashbyhq.com", PlatformAshby},
	{"linkedin.com", PlatformLinkedIn},
}

// DetectPlatform identifies the job board platform from a URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Hostname())
	for _, hp := range hostPlatforms {
		if host == hp.suffix || strings.HasSuffix(host, "."+hp.suffix) {
			return hp.platform
		}
	}
	return PlatformUnknown
}

// Selectors pairs the content and noise selectors for one page.
type Selectors struct {
	Content []string
	Noise   []string
}

// SelectorsFor returns extraction selectors for a URL. Job board URLs get
// board-specific selectors; anything else gets general article selectors.
func SelectorsFor(urlStr string, jobPosting bool) Selectors {
	if !jobPosting {
		return Selectors{Content: DefaultTextSelectors(), Noise: commonNoise()}
	}
	p := DetectPlatform(urlStr)
	return Selectors{Content: PlatformContentSelectors(p), Noise: PlatformNoiseSelectors(p)}
}

// PlatformContentSelectors returns content selectors optimized for a specific platform.
func PlatformContentSelectors(platform Platform) []string {
	switch platform {
	case PlatformGreenhouse:
		return []string{".job__description.body", ".job__description", ".job-description__content", "#content", ".job-post-container"}
	case PlatformLever:
		return []string{".posting-page", ".section-wrapper.page-full-width", ".posting-description", ".content"}
	case PlatformWorkday:
		return []string{"[data-automation-id='jobDescription']", ".job-description"}
	case PlatformAshby:
		return []string{"[class*='descriptionText']", "main"}
	case PlatformLinkedIn:
		return []string{".show-more-less-html__markup", ".description__text", "main"}
	default:
		return JobPostingSelectors()
	}
}

func commonNoise() []string {
	return []string{
		"form",
		"#application-form",
		".application-form",
		".apply-button-container",
		"[data-testid='application-form']",
		".voluntary-disclosure",
		".eeo-statement",
		".eeo-section",
		".legal-disclosure",
		".self-identification",
		".social-share",
		".share-buttons",
		".cookie-banner",
		".cookie-consent",
		".gdpr-notice",
	}
}

// PlatformNoiseSelectors returns noise exclusion selectors for a specific platform.
func PlatformNoiseSelectors(platform Platform) []string {
	common := commonNoise()
	switch platform {
	case PlatformGreenhouse:
		return append(common, ".application--wrapper", ".voluntary-self-id", "#usa_self_id_section", ".post-apply")
	case PlatformLever:
		return append(common, ".apply-section", ".lever-application-form", ".posting-apply")
	case PlatformWorkday:
		return append(common, "[data-automation-id='applyButton']", ".application-section")
	case PlatformLinkedIn:
		return append(common, ".top-card-layout__cta-container", ".similar-jobs")
	default:
		return common
	}
}

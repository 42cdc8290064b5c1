// Package observability provides formatted output for verbose CLI mode and
// Prometheus metrics for pipeline runs.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// previewLines is the number of lines shown for Markdown artifacts
	previewLines = 12
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(line, inner))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad truncates or right-pads s to exactly width runes.
func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n > width {
		r := []rune(s)
		return string(r[:width-3]) + "..."
	} else if n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func writeList(sb *strings.Builder, heading string, items []string, limit int) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(heading + ":\n")
	count := min(len(items), limit)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
	}
	if len(items) > limit {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-limit))
	}
	sb.WriteString("\n")
}

// PrintJobAnalysis outputs a summary of the job requirements and match score.
func (p *Printer) PrintJobAnalysis(job *types.JobRequirements) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Role:     %s\n", job.JobTitle))
	if job.JobLevel != "" {
		sb.WriteString(fmt.Sprintf("Level:    %s\n", job.JobLevel))
	}
	if job.Industry != "" {
		sb.WriteString(fmt.Sprintf("Industry: %s\n", job.Industry))
	}
	sb.WriteString("\n")

	m := job.MatchScore
	sb.WriteString(fmt.Sprintf("Overall match:   %5.1f\n", m.OverallMatch))
	sb.WriteString(fmt.Sprintf("  Technical:     %5.1f\n", m.TechnicalSkillsMatch))
	sb.WriteString(fmt.Sprintf("  Experience:    %5.1f\n", m.ExperienceMatch))
	sb.WriteString(fmt.Sprintf("  Education:     %5.1f\n", m.EducationMatch))
	sb.WriteString(fmt.Sprintf("  Industry:      %5.1f\n", m.IndustryMatch))
	sb.WriteString("\n")

	writeList(&sb, "Technical skills", job.TechnicalSkills, maxItemsToShow)
	writeList(&sb, "Strengths", m.Strengths, 3)
	writeList(&sb, "Gaps", m.Gaps, 3)

	p.printBox("JOB ANALYSIS", strings.TrimSuffix(sb.String(), "\n\n"))
}

// PrintOptimization outputs the resume optimization suggestions.
func (p *Printer) PrintOptimization(opt *types.ResumeOptimization) {
	if opt == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Content suggestions: %d\n\n", len(opt.ContentSuggestions)))

	count := min(len(opt.ContentSuggestions), maxItemsToShow)
	for i := 0; i < count; i++ {
		s := opt.ContentSuggestions[i]
		sb.WriteString(fmt.Sprintf("[%s] %s\n", s.Section, s.Suggestion))
	}
	if count > 0 {
		sb.WriteString("\n")
	}

	writeList(&sb, "Skills to highlight", opt.SkillsToHighlight, maxItemsToShow)
	writeList(&sb, "ATS keywords", opt.KeywordsForATS, maxItemsToShow)

	p.printBox("RESUME OPTIMIZATION", strings.TrimSuffix(sb.String(), "\n\n"))
}

// PrintCompanyResearch outputs the company research brief.
func (p *Printer) PrintCompanyResearch(research *types.CompanyResearch) {
	if research == nil {
		return
	}

	var sb strings.Builder
	writeList(&sb, "Recent developments", research.RecentDevelopments, 3)
	writeList(&sb, "Culture and values", research.CultureAndValues, 3)
	writeList(&sb, "Interview questions", research.InterviewQuestions, 3)
	if len(research.Sources) > 0 {
		sb.WriteString(fmt.Sprintf("Sources: %d\n", len(research.Sources)))
	}

	p.printBox("COMPANY RESEARCH", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMarkdown outputs the first lines of a Markdown artifact.
func (p *Printer) PrintMarkdown(title string, content []byte) {
	text := strings.TrimSpace(string(content))
	if text == "" {
		return
	}
	lines := strings.Split(text, "\n")
	if len(lines) > previewLines {
		more := len(lines) - previewLines
		lines = append(lines[:previewLines], fmt.Sprintf("... %d more lines", more))
	}
	p.printBox(title, strings.Join(lines, "\n"))
}

// PrintArtifacts outputs which artifacts exist and when they were produced.
func (p *Printer) PrintArtifacts(list []artifacts.Artifact) {
	present := make(map[string]artifacts.Artifact, len(list))
	for _, a := range list {
		present[a.Name] = a
	}

	var sb strings.Builder
	for _, name := range artifacts.Names {
		a, ok := present[name]
		if !ok {
			sb.WriteString(fmt.Sprintf("✗ %-20s missing\n", name))
			continue
		}
		sb.WriteString(fmt.Sprintf("✓ %-20s %s %6d B\n", name, a.ProducedAt.Local().Format("2006-01-02 15:04"), len(a.Content)))
	}

	p.printBox(fmt.Sprintf("ARTIFACTS (%d/%d)", len(present), len(artifacts.Names)), strings.TrimSuffix(sb.String(), "\n"))
}

package summary

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	defaultSummary = "This repository contains code and documentation."
	defaultFact    = "Well-documented repository"
	failedSummary  = "Unable to analyze repository content"
	failedFact     = "Content analysis failed"
)

var (
	headingMarker     = regexp.MustCompile(`^#+\s*`)
	importantSections = regexp.MustCompile(`(?i)installation|usage|getting started|features|about|api|examples`)
	badgePattern      = regexp.MustCompile(`!\[.*?\]\(https://.*?\.svg\)`)
	techKeywords      = []string{
		"react", "vue", "angular", "typescript", "javascript", "python", "java",
		"go", "rust", "next.js", "node.js", "docker", "kubernetes",
	}
)

// Fallback summarizes a README without any external service.
func Fallback(content string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Summary:   failedSummary,
				CoolFacts: []string{failedFact},
				Success:   false,
				Source:    SourceFallback,
			}
		}
	}()

	var headers, body []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "#") {
			if len(headers) < 5 {
				headers = append(headers, line)
			}
			continue
		}
		if strings.TrimSpace(line) != "" && len(body) < 10 {
			body = append(body, line)
		}
	}

	return Result{
		Summary:   fallbackSummary(headers, body),
		CoolFacts: fallbackFacts(content, headers),
		Success:   true,
		Source:    SourceFallback,
	}
}

func fallbackSummary(headers, body []string) string {
	var title string
	if len(headers) > 0 {
		title = headingMarker.ReplaceAllString(headers[0], "")
	}

	var paragraph string
	for _, line := range body {
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "![") || strings.HasPrefix(line, "[") {
			continue
		}
		if utf8.RuneCountInString(line) > 20 {
			paragraph = truncate(line, 200)
			break
		}
	}

	switch {
	case title != "" && paragraph != "":
		return title + " - " + paragraph
	case paragraph != "":
		return paragraph
	case title != "":
		return title
	default:
		return defaultSummary
	}
}

func fallbackFacts(content string, headers []string) []string {
	var facts []string

	if utf8.RuneCountInString(content) > 1000 {
		facts = append(facts, "Contains comprehensive documentation")
	}

	var sections []string
	for _, h := range headers {
		if importantSections.MatchString(h) {
			sections = append(sections, headingMarker.ReplaceAllString(h, ""))
		}
	}
	if len(sections) > 0 {
		facts = append(facts, "Includes sections: "+strings.Join(sections, ", "))
	}

	lower := strings.ToLower(content)
	var techs []string
	for _, kw := range techKeywords {
		if strings.Contains(lower, kw) {
			techs = append(techs, kw)
			if len(techs) == 5 {
				break
			}
		}
	}
	if len(techs) > 0 {
		facts = append(facts, "Uses technologies: "+strings.Join(techs, ", "))
	}

	if badges := len(badgePattern.FindAllString(content, -1)); badges > 0 {
		facts = append(facts, fmt.Sprintf("Includes %d status badges for quality assurance", badges))
	}

	if blocks := strings.Count(content, "```") / 2; blocks > 0 {
		facts = append(facts, fmt.Sprintf("Contains %d code examples", blocks))
	}

	if len(facts) == 0 {
		facts = append(facts, defaultFact)
	}
	return facts
}

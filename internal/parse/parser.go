// Package parse turns raw explanation-wiki markup into structured
// sections ready for chunking.
//
// Pages follow the explain wiki's layout: a {{comic}} template
// carrying the title and hover text, followed by == Explanation ==,
// == Transcript == and optionally == Trivia == sections, and a
// Discussion section that is always discarded.
package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/panelbase/panelbase/internal/fetch"
)

// ErrMalformed indicates the page did not conform to the expected
// wiki structure at all. The ingestion coordinator re-fetches and
// re-parses once before skipping the id.
var ErrMalformed = errors.New("malformed page content")

// Sections is the structured content of one explanation page.
//
// A missing explanation is not an error: Explanation is empty and
// MissingExplanation is set so the caller can log a warning while
// still ingesting the rest of the page.
type Sections struct {
	Title              string
	HoverText          string
	Explanation        string
	Transcript         string
	Trivia             string
	MissingExplanation bool
}

var (
	headingRe       = regexp.MustCompile(`(?m)^==\s*([^=]+?)\s*==\s*$`)
	templateFieldRe = regexp.MustCompile(`(?m)^\s*\|\s*(\w+)\s*=\s*(.*)$`)
)

// Parse extracts structured sections from a fetched page.
func Parse(page *fetch.RawPage) (*Sections, error) {
	if page == nil || strings.TrimSpace(page.Wikitext) == "" {
		return nil, fmt.Errorf("empty page: %w", ErrMalformed)
	}

	s := &Sections{}

	template, rest := splitComicTemplate(page.Wikitext)
	if template != "" {
		fields := parseTemplateFields(template)
		s.Title = CleanMarkup(fields["title"])
		s.HoverText = CleanMarkup(fields["titletext"])
	}
	if s.Title == "" {
		// Fall back to the wiki page title, "149: Sandwich".
		if _, t, ok := strings.Cut(page.PageTitle, ": "); ok {
			s.Title = t
		}
	}

	sections := splitSections(rest)
	s.Explanation = CleanMarkup(sections["explanation"])
	s.Transcript = CleanMarkup(sections["transcript"])
	s.Trivia = CleanMarkup(sections["trivia"])

	// A page with neither a comic template nor any recognized section
	// is not an explanation page.
	if template == "" && len(sections) == 0 {
		return nil, fmt.Errorf("page %d has no comic template and no sections: %w", page.ID, ErrMalformed)
	}
	if s.Title == "" {
		return nil, fmt.Errorf("page %d has no title: %w", page.ID, ErrMalformed)
	}

	if s.Explanation == "" {
		s.MissingExplanation = true
	}

	return s, nil
}

// splitComicTemplate separates the leading {{comic ...}} template from
// the rest of the page. Returns ("", full text) when absent.
func splitComicTemplate(text string) (template, rest string) {
	idx := strings.Index(text, "{{comic")
	if idx < 0 {
		return "", text
	}

	// Scan for the matching close braces, tolerating nested templates
	// inside field values.
	depth := 0
	for i := idx; i < len(text)-1; i++ {
		switch {
		case text[i] == '{' && text[i+1] == '{':
			depth++
		case text[i] == '}' && text[i+1] == '}':
			depth--
			if depth == 0 {
				return text[idx : i+2], text[:idx] + text[i+2:]
			}
		}
	}
	return "", text
}

// parseTemplateFields extracts "| key = value" pairs from a template body.
func parseTemplateFields(template string) map[string]string {
	fields := make(map[string]string)
	for _, m := range templateFieldRe.FindAllStringSubmatch(template, -1) {
		key := strings.ToLower(m[1])
		fields[key] = strings.TrimSpace(m[2])
	}
	return fields
}

// splitSections splits the page body at == Heading == markers.
// Heading names are lowercased; discussion and comment sections are
// dropped.
func splitSections(text string) map[string]string {
	matches := headingRe.FindAllStringSubmatchIndex(text, -1)
	sections := make(map[string]string)

	for i, m := range matches {
		name := strings.ToLower(strings.TrimSpace(text[m[2]:m[3]]))
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		switch {
		case strings.HasPrefix(name, "discussion"), strings.HasPrefix(name, "comment"):
			// reader discussion, not explanation content
		case name == "explanation" || strings.HasPrefix(name, "explanation"):
			sections["explanation"] = strings.TrimSpace(text[start:end])
		case name == "transcript":
			sections["transcript"] = strings.TrimSpace(text[start:end])
		case name == "trivia":
			sections["trivia"] = strings.TrimSpace(text[start:end])
		}
	}

	return sections
}

package parse

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	commentRe      = regexp.MustCompile(`(?s)<!--.*?-->`)
	wikiLinkRe     = regexp.MustCompile(`\[\[([^]|]*?)(?:\|([^]]*?))?]]`)
	externalLinkRe = regexp.MustCompile(`\[(https?://\S+)(?:\s+([^]]+))?]`)
	templateRe     = regexp.MustCompile(`\{\{([^{}]*)}}`)
	emphasisRe     = regexp.MustCompile(`'{2,5}`)
	brRe           = regexp.MustCompile(`(?i)<br\s*/?>`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
	spacesRe       = regexp.MustCompile(`[ \t]+`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// CleanMarkup reduces wikitext to plain prose: links are replaced by
// their labels, templates by their display text, emphasis markers and
// embedded HTML are stripped.
func CleanMarkup(text string) string {
	if text == "" {
		return ""
	}

	text = commentRe.ReplaceAllString(text, "")
	text = brRe.ReplaceAllString(text, "\n")

	// Templates can nest ({{w|{{tl|x}}}}); resolve inside-out.
	for range 4 {
		if !strings.Contains(text, "{{") {
			break
		}
		text = templateRe.ReplaceAllStringFunc(text, resolveTemplate)
	}

	text = wikiLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := wikiLinkRe.FindStringSubmatch(m)
		if sub[2] != "" {
			return sub[2]
		}
		return sub[1]
	})

	text = externalLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := externalLinkRe.FindStringSubmatch(m)
		return sub[2] // bare [url] renders as nothing useful
	})

	text = emphasisRe.ReplaceAllString(text, "")
	text = stripHTML(text)
	text = stripListMarkers(text)

	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	var lines []string
	for line := range strings.SplitSeq(text, "\n") {
		lines = append(lines, strings.TrimSpace(spacesRe.ReplaceAllString(line, " ")))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// resolveTemplate maps one {{...}} template to its display text.
// Link-style templates ({{w|Article|Label}}) render their label;
// maintenance templates ({{incomplete}}, {{citation needed}}) render
// nothing.
func resolveTemplate(m string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(m, "{{"), "}}")
	parts := strings.Split(inner, "|")
	name := strings.ToLower(strings.TrimSpace(parts[0]))

	switch name {
	case "w", "wp", "wikipedia", "tl":
		if len(parts) > 1 {
			return strings.TrimSpace(parts[len(parts)-1])
		}
		return ""
	default:
		return ""
	}
}

// stripHTML removes inline HTML left in wikitext (span, sup, del and
// friends), keeping the text content.
func stripHTML(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + text + "</div>"))
	if err != nil {
		return text
	}
	return doc.Text()
}

// stripListMarkers drops leading *, #, : and ; markers from each line.
func stripListMarkers(text string) string {
	var b strings.Builder
	for line := range strings.SplitSeq(text, "\n") {
		trimmed := strings.TrimLeft(line, "*#:; ")
		b.WriteString(trimmed)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Normalize produces the canonical form of a text used for content
// hashing: all whitespace runs collapsed to single spaces, trimmed.
// Two texts that differ only in whitespace normalize identically.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

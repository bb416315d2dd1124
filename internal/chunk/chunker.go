// Package chunk splits parsed page sections into bounded-length
// fragments for embedding.
//
// Chunking is fully deterministic: the same sections always produce
// the same drafts in the same order, which is what makes re-ingestion
// idempotent.
package chunk

import (
	"strings"

	"github.com/panelbase/panelbase/internal/parse"
	"github.com/panelbase/panelbase/internal/store"
)

// Draft is a chunk before embedding: text, section tag, and its
// position in the comic's fixed section order.
type Draft struct {
	Index   int32
	Section store.SectionType
	Text    string
}

// Chunker splits sections into drafts targeting MinChars-MaxChars
// characters per chunk.
type Chunker struct {
	minChars        int
	maxChars        int
	minSectionChars int
}

// New creates a Chunker. minSectionChars is the threshold below which
// transcript and trivia sections produce no chunks at all.
func New(minChars, maxChars, minSectionChars int) *Chunker {
	return &Chunker{
		minChars:        minChars,
		maxChars:        maxChars,
		minSectionChars: minSectionChars,
	}
}

// Chunk produces the ordered draft sequence for one parsed page.
//
// Section order is fixed: title_hover, explanation, transcript,
// trivia. Indices are contiguous from 0. Short transcript or trivia
// sections are discarded rather than emitted as undersized chunks.
func (c *Chunker) Chunk(s *parse.Sections) []Draft {
	var drafts []Draft
	index := int32(0)

	add := func(section store.SectionType, texts []string) {
		for _, t := range texts {
			drafts = append(drafts, Draft{Index: index, Section: section, Text: t})
			index++
		}
	}

	if s.Title != "" || s.HoverText != "" {
		add(store.SectionTitleHover, []string{titleHoverText(s.Title, s.HoverText)})
	}

	add(store.SectionExplanation, c.split(s.Explanation))

	if len(s.Transcript) >= c.minSectionChars {
		add(store.SectionTranscript, c.split(s.Transcript))
	}
	if len(s.Trivia) >= c.minSectionChars {
		add(store.SectionTrivia, c.split(s.Trivia))
	}

	return drafts
}

func titleHoverText(title, hover string) string {
	switch {
	case title == "":
		return hover
	case hover == "":
		return title
	default:
		return title + ". " + hover
	}
}

// split breaks a section into chunks of minChars-maxChars characters,
// packing whole sentences greedily and never splitting mid-sentence
// unless a single sentence exceeds maxChars on its own.
func (c *Chunker) split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, sentence := range splitSentences(text) {
		if len(sentence) > c.maxChars {
			// Oversized sentence: flush what we have, then hard-split
			// at word boundaries as a last resort.
			flush()
			chunks = append(chunks, splitWords(sentence, c.maxChars)...)
			continue
		}

		if current.Len() > 0 && current.Len()+1+len(sentence) > c.maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	// Merge a trailing fragment below the minimum into its predecessor
	// when the merged size stays reasonable.
	if n := len(chunks); n > 1 && len(chunks[n-1]) < c.minChars {
		merged := chunks[n-2] + " " + chunks[n-1]
		if len(merged) <= c.maxChars+c.minChars {
			chunks = append(chunks[:n-2], merged)
		}
	}

	return chunks
}

// splitSentences performs a simple deterministic sentence split on
// terminal punctuation followed by whitespace. Paragraph breaks always
// terminate a sentence.
func splitSentences(text string) []string {
	var sentences []string

	for para := range strings.SplitSeq(text, "\n\n") {
		para = strings.TrimSpace(strings.ReplaceAll(para, "\n", " "))
		if para == "" {
			continue
		}

		start := 0
		for i := 0; i < len(para); i++ {
			if para[i] != '.' && para[i] != '!' && para[i] != '?' {
				continue
			}
			// consume closing quotes/parens after the terminator
			end := i + 1
			for end < len(para) && (para[end] == '"' || para[end] == ')' || para[end] == '\'') {
				end++
			}
			if end < len(para) && para[end] != ' ' {
				continue
			}
			if s := strings.TrimSpace(para[start:end]); s != "" {
				sentences = append(sentences, s)
			}
			start = end
			i = end
		}
		if s := strings.TrimSpace(para[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

// splitWords hard-splits text at word boundaries into pieces of at
// most maxChars characters.
func splitWords(text string, maxChars int) []string {
	words := strings.Fields(text)
	var pieces []string
	var current strings.Builder

	for _, w := range words {
		if current.Len() > 0 && current.Len()+1+len(w) > maxChars {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(w)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

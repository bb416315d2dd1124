package chunk

import (
	"reflect"
	"strings"
	"testing"

	"github.com/panelbase/panelbase/internal/parse"
	"github.com/panelbase/panelbase/internal/store"
)

func sampleSections() *parse.Sections {
	return &parse.Sections{
		Title:       "Sandwich",
		HoverText:   "Proper User Policy apparently means Simon Says.",
		Explanation: strings.Repeat("This sentence explains one part of the comic in moderate detail. ", 30),
		Transcript:  strings.Repeat("Cueball: Make me a sandwich. Friend: Make it yourself. ", 10),
		Trivia:      strings.Repeat("A small piece of trivia about the comic. ", 8),
	}
}

func TestChunk_IndicesContiguousAndOrdered(t *testing.T) {
	c := New(200, 500, 80)
	drafts := c.Chunk(sampleSections())

	if len(drafts) == 0 {
		t.Fatal("no drafts produced")
	}
	for i, d := range drafts {
		if d.Index != int32(i) {
			t.Errorf("draft %d has index %d", i, d.Index)
		}
	}

	// Section order is fixed: title_hover, explanation, transcript, trivia.
	order := map[store.SectionType]int{
		store.SectionTitleHover:  0,
		store.SectionExplanation: 1,
		store.SectionTranscript:  2,
		store.SectionTrivia:      3,
	}
	last := -1
	for _, d := range drafts {
		rank, ok := order[d.Section]
		if !ok {
			t.Fatalf("unknown section %q", d.Section)
		}
		if rank < last {
			t.Fatalf("section %q out of order", d.Section)
		}
		last = rank
	}
}

func TestChunk_Bounds(t *testing.T) {
	c := New(200, 500, 80)
	for _, d := range c.Chunk(sampleSections()) {
		if len(d.Text) > 500+200 {
			t.Errorf("chunk of %d chars exceeds the merged-tail ceiling: %q...", len(d.Text), d.Text[:40])
		}
		if d.Text != strings.TrimSpace(d.Text) {
			t.Errorf("chunk has surrounding whitespace: %q", d.Text)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(200, 500, 80)
	a := c.Chunk(sampleSections())
	b := c.Chunk(sampleSections())
	if !reflect.DeepEqual(a, b) {
		t.Error("identical sections produced different drafts")
	}
}

func TestChunk_ShortSectionsDiscarded(t *testing.T) {
	c := New(200, 500, 80)
	s := &parse.Sections{
		Title:       "Short",
		Explanation: "A complete explanation that stands on its own.",
		Transcript:  "[Too short.]",
		Trivia:      "Tiny.",
	}

	for _, d := range c.Chunk(s) {
		if d.Section == store.SectionTranscript || d.Section == store.SectionTrivia {
			t.Errorf("short section %q produced a chunk", d.Section)
		}
	}
}

func TestChunk_TitleHoverComposition(t *testing.T) {
	tests := []struct {
		name  string
		title string
		hover string
		want  string
	}{
		{"both", "Sandwich", "Sudo.", "Sandwich. Sudo."},
		{"title only", "Sandwich", "", "Sandwich"},
		{"hover only", "", "Sudo.", "Sudo."},
	}

	c := New(200, 500, 80)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafts := c.Chunk(&parse.Sections{Title: tt.title, HoverText: tt.hover})
			if len(drafts) != 1 {
				t.Fatalf("got %d drafts, want 1", len(drafts))
			}
			if drafts[0].Section != store.SectionTitleHover {
				t.Errorf("section = %q", drafts[0].Section)
			}
			if drafts[0].Text != tt.want {
				t.Errorf("text = %q, want %q", drafts[0].Text, tt.want)
			}
		})
	}
}

func TestChunk_EmptySectionsProduceNothing(t *testing.T) {
	c := New(200, 500, 80)
	if drafts := c.Chunk(&parse.Sections{}); len(drafts) != 0 {
		t.Errorf("got %d drafts from empty sections", len(drafts))
	}
}

func TestSplit_NeverBreaksMidSentence(t *testing.T) {
	c := New(200, 500, 80)
	text := strings.Repeat("Each sentence here ends with a period and fits easily. ", 40)

	for _, chunk := range c.split(text) {
		if !strings.HasSuffix(chunk, ".") {
			t.Errorf("chunk does not end on a sentence boundary: %q", chunk)
		}
	}
}

func TestSplit_OversizedSentenceHardSplit(t *testing.T) {
	c := New(50, 100, 20)
	long := strings.Repeat("word ", 60) + "end."

	chunks := c.split(long)
	if len(chunks) < 2 {
		t.Fatalf("oversized sentence not split: %d chunks", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk) > 100+50 {
			t.Errorf("hard-split piece of %d chars too long", len(chunk))
		}
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences(`First sentence. Second one! A third? "Quoted end."

New paragraph without terminator`)

	want := []string{
		"First sentence.",
		"Second one!",
		"A third?",
		`"Quoted end."`,
		"New paragraph without terminator",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSentences = %q, want %q", got, want)
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := New(200, 500, 80)
	text := "Fits in one chunk."
	got := c.split(text)
	if len(got) != 1 || got[0] != text {
		t.Errorf("split(%q) = %q", text, got)
	}
}

package retrieve

import (
	"sort"

	"github.com/panelbase/panelbase/internal/store"
)

// Candidate is one comic surfaced by vector search: all of its matched
// chunk texts, scored by the minimum distance among them.
type Candidate struct {
	ComicID   int64
	Title     string
	HoverText string
	Score     float64  // best (lowest) cosine distance of any matched chunk
	Excerpts  []string // matched chunk texts, in hit order
}

// Aggregate collapses chunk-level hits into at most limit per-comic
// candidates. Candidates are ordered ascending by score; ties break
// toward the lower comic id so identical inputs always produce
// identical output. Candidates beyond the limit are dropped.
func Aggregate(hits []store.ChunkHit, limit int) []Candidate {
	byComic := make(map[int64]*Candidate)
	for _, h := range hits {
		c, ok := byComic[h.ComicID]
		if !ok {
			c = &Candidate{
				ComicID:   h.ComicID,
				Title:     h.ComicTitle,
				HoverText: h.HoverText,
				Score:     h.Distance,
			}
			byComic[h.ComicID] = c
		}
		if h.Distance < c.Score {
			c.Score = h.Distance
		}
		c.Excerpts = append(c.Excerpts, h.Text)
	}

	candidates := make([]Candidate, 0, len(byComic))
	for _, c := range byComic {
		candidates = append(candidates, *c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score < candidates[j].Score
		}
		return candidates[i].ComicID < candidates[j].ComicID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

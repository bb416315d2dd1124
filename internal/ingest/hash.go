package ingest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/panelbase/panelbase/internal/parse"
)

// ContentHash computes the change-detection digest for a comic: a
// sha256 over the whitespace-normalized explanation text. Equal hashes
// mean no re-ingestion is needed.
//
// The hash deliberately covers the explanation only; title, hover,
// transcript and trivia drifting without an explanation edit goes
// undetected. In practice explanation edits dominate wiki activity.
func ContentHash(explanation string) string {
	sum := sha256.Sum256([]byte(parse.Normalize(explanation)))
	return hex.EncodeToString(sum[:])
}

// NeedsUpdate reports whether the stored hash differs from the hash of
// the current explanation text. An empty stored hash always needs an
// update.
func NeedsUpdate(storedHash, explanation string) bool {
	return storedHash == "" || storedHash != ContentHash(explanation)
}

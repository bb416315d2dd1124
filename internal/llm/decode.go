package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedResponse indicates model output that fails the expected
// structured parse. It is always surfaced to the caller, never patched
// over.
var ErrMalformedResponse = errors.New("malformed model response")

// DecodeJSON parses model output into T. It tolerates a markdown code
// fence around the payload (models add them despite instructions) but
// is otherwise strict: invalid JSON or trailing garbage fails with
// ErrMalformedResponse.
func DecodeJSON[T any](raw string) (T, error) {
	var out T

	text := stripCodeFence(raw)
	if text == "" {
		return out, fmt.Errorf("empty response: %w", ErrMalformedResponse)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return out, fmt.Errorf("trailing data after JSON payload: %w", ErrMalformedResponse)
	}

	return out, nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line ("json")
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

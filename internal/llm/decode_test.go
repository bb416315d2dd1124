package llm

import (
	"errors"
	"testing"
)

func TestDecodeJSON_StringArray(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "plain array",
			raw:  `["databases", "security"]`,
			want: []string{"databases", "security"},
		},
		{
			name: "fenced with language tag",
			raw:  "```json\n[\"databases\", \"security\"]\n```",
			want: []string{"databases", "security"},
		},
		{
			name: "fenced without language tag",
			raw:  "```\n[\"one\"]\n```",
			want: []string{"one"},
		},
		{
			name: "surrounding whitespace",
			raw:  "\n\n  [\"one\"]  \n",
			want: []string{"one"},
		},
		{
			name:    "empty response",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "prose instead of JSON",
			raw:     "Here are the themes: databases, security",
			wantErr: true,
		},
		{
			name:    "trailing garbage after payload",
			raw:     `["one"] and some commentary`,
			wantErr: true,
		},
		{
			name:    "truncated JSON",
			raw:     `["one", "two`,
			wantErr: true,
		},
		{
			name:    "wrong shape",
			raw:     `{"themes": ["one"]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJSON[[]string](tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeJSON(%q) succeeded, want error", tt.raw)
				}
				if !errors.Is(err, ErrMalformedResponse) {
					t.Errorf("error = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON(%q) failed: %v", tt.raw, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecodeJSON_Struct(t *testing.T) {
	type ranked struct {
		ID        int64  `json:"id"`
		Rationale string `json:"rationale"`
	}

	got, err := DecodeJSON[[]ranked]("```json\n[{\"id\": 149, \"rationale\": \"about sandwiches\"}]\n```")
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 149 || got[0].Rationale != "about sandwiches" {
		t.Errorf("got %+v", got)
	}
}

func TestDecodeJSON_NumberNotArray(t *testing.T) {
	// Decoding into the wrong top-level type must fail loudly.
	if _, err := DecodeJSON[[]string]("42"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

package mode

import "testing"

func TestParse_Aliases(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", Vector},
		{"vector", Vector},
		{"Vector", Vector},
		{"SEMANTIC", Vector},
		{"embedding", Vector},
		{"keyword", Keyword},
		{"kw", Keyword},
		{"fts", Keyword},
		{"Text", Keyword},
		{"FULLTEXT", Keyword},
		{"bm25", Keyword},
		{"  keyword  ", Keyword},
	}

	for _, tc := range tests {
		got, err := Parse(tc.in)
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParse_Unknown(t *testing.T) {
	for _, in := range []string{"hybrid", "geo", "nonsense"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

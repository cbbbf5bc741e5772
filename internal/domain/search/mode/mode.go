package mode

import (
	"fmt"
	"strings"
)

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Vector ranks by embedding distance against the query vector.
	Vector Mode = "vector"
	// Keyword ranks by full-text relevance and never calls the embedder.
	Keyword Mode = "keyword"
)

// Parse normalizes a user-supplied mode string. Matching is
// case-insensitive, recognized aliases map onto the two modes, and an
// absent mode defaults to Vector.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vector", "semantic", "embedding":
		return Vector, nil
	case "keyword", "kw", "text", "fts", "fulltext", "bm25":
		return Keyword, nil
	default:
		return "", fmt.Errorf("unknown search mode %q", s)
	}
}

func (m Mode) String() string { return string(m) }

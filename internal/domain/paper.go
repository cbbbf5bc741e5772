package domain

import (
	"fmt"
	"strings"
)

// Paper is a single corpus record. ID is source-assigned on the ingestion
// path (the catalog's forum id) and store-assigned on the retrieval path;
// Link is the stable natural key enforced unique by the store.
type Paper struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Link     string `json:"link"`
}

// VectorUpdate pairs a natural key with its computed embedding.
type VectorUpdate struct {
	Link   string
	Vector []float32
}

// Hit is a ranked retrieval result. Score is cosine similarity in vector
// mode (higher = closer) and text relevance in keyword mode; the two
// scales are not comparable.
type Hit struct {
	Paper
	Score float64 `json:"score"`
}

// FetchPage is one slice of the source catalog listing. Total is the
// catalog's authoritative corpus size, reported on every page.
type FetchPage struct {
	Papers []Paper
	Total  int
}

// Normalize trims whitespace and defaults missing fields to empty.
func (p *Paper) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Title = strings.TrimSpace(p.Title)
	p.Abstract = strings.TrimSpace(p.Abstract)
	p.Link = strings.TrimSpace(p.Link)
}

// Validate reports whether the record carries everything ingestion needs.
// A violation wraps ErrDataValidation: the record is skipped, never fatal.
func (p Paper) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("empty title (link %q): %w", p.Link, ErrDataValidation)
	}
	if p.Abstract == "" {
		return fmt.Errorf("empty abstract (link %q): %w", p.Link, ErrDataValidation)
	}
	if p.Link == "" {
		return fmt.Errorf("empty link (title %q): %w", p.Title, ErrDataValidation)
	}
	return nil
}

// EmbedInput renders the canonical embedding input for a record: a fixed
// title/abstract template with every newline flattened to a space.
func EmbedInput(title, abstract string) string {
	text := "Title: " + title + "\n\nAbstract: " + abstract
	return strings.ReplaceAll(text, "\n", " ")
}

// NormalizeQuery flattens newlines so query text matches the
// ingestion-side normalization. Queries are not templated.
func NormalizeQuery(query string) string {
	return strings.ReplaceAll(query, "\n", " ")
}

package search

import (
	"context"

	"github.com/trendllm/paperdex/internal/domain"
)

// Searcher answers ranked queries over the paper catalog.
type Searcher interface {
	// SearchVector ranks rows with a stored embedding by cosine
	// similarity against the query vector.
	SearchVector(ctx context.Context, vector []float32, limit int) ([]domain.Hit, error)
	// SearchKeyword ranks rows by full-text relevance over title and
	// abstract. It never touches embeddings.
	SearchKeyword(ctx context.Context, query string, limit int) ([]domain.Hit, error)
}

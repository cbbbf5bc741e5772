package ingest

import (
	"context"

	"github.com/trendllm/paperdex/internal/domain"
)

// Store is the slice of the persistence contract the pipeline needs.
type Store interface {
	// UpsertPapers writes record metadata keyed by link, leaving any
	// stored vector untouched. Returns the number of rows written.
	UpsertPapers(ctx context.Context, papers []domain.Paper) (int, error)
	// LinksWithEmbedding lists the links that already carry a vector.
	LinksWithEmbedding(ctx context.Context) ([]string, error)
	// StoreVectors commits one batch of computed embeddings.
	StoreVectors(ctx context.Context, updates []domain.VectorUpdate) error
}

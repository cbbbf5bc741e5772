// Package db defines the storage facade for the paper catalog. Two
// drivers implement it: postgres (pgvector) and redis (RediSearch).
package db

import (
	"context"
	"time"

	"github.com/trendllm/paperdex/internal/domain"
)

// Store is the main database facade combining all sub-interfaces.
// Consumers depend on the narrow sub-interfaces, never on Store itself.
type Store interface {
	Pinger
	SchemaManager
	CatalogWriter
	CatalogReader
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchemaManager prepares the backing schema: tables and indexes for
// postgres, the FT index for redis. Idempotent.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

// CatalogWriter mutates the paper catalog. The conflict key is the
// paper link: an upsert that changes a paper's title or abstract
// invalidates its stored embedding (the vector encodes the old text),
// while an unchanged upsert leaves it alone. StoreVectors attaches
// embeddings to existing rows.
type CatalogWriter interface {
	UpsertPapers(ctx context.Context, papers []domain.Paper) (int, error)
	StoreVectors(ctx context.Context, updates []domain.VectorUpdate) error
	LinksWithEmbedding(ctx context.Context) ([]string, error)
}

// CatalogReader reads papers back out.
type CatalogReader interface {
	// FetchByIDs returns the papers matching the given record IDs,
	// preserving input order and silently dropping unknown IDs.
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Paper, error)
	CountPapers(ctx context.Context) (int, error)
}

// Searcher answers ranked queries over the catalog.
type Searcher interface {
	// SearchVector returns the papers nearest to the query vector,
	// scored by cosine similarity. Rows without an embedding never
	// appear in the result.
	SearchVector(ctx context.Context, vector []float32, limit int) ([]domain.Hit, error)
	// SearchKeyword runs full-text relevance ranking over title and
	// abstract. It never touches embeddings.
	SearchKeyword(ctx context.Context, query string, limit int) ([]domain.Hit, error)
}

package fetch

import (
	"context"

	"github.com/trendllm/paperdex/internal/domain"
)

// Source lists one page of the paper catalog.
type Source interface {
	ListNotes(ctx context.Context, offset, limit int) (domain.FetchPage, error)
}

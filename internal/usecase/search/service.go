// Package search is the hybrid retrieval engine: one query interface
// over vector similarity and keyword relevance, with a bounded
// query-embedding cache in front of the embedder.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/trendllm/paperdex/internal/domain"
	"github.com/trendllm/paperdex/internal/domain/search/mode"
	"github.com/trendllm/paperdex/internal/metrics"
)

// Result limits and the batch ceiling.
const (
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxBatchQueries bounds a multi-query request so one call cannot
	// amplify into an unbounded number of embedder inputs and store
	// round trips.
	MaxBatchQueries = 32
)

// Options tune the engine.
type Options struct {
	Model        string // embedding model name, part of the cache key
	CacheSize    int
	DefaultLimit int
	MaxLimit     int
}

// QueryResult groups the hits for one query of a batch.
type QueryResult struct {
	Query string       `json:"query"`
	Hits  []domain.Hit `json:"hits"`
}

// Service answers search queries against the store.
type Service struct {
	store        Searcher
	embedder     domain.Embedder
	cache        *queryCache
	defaultLimit int
	maxLimit     int
	logger       *zap.Logger
}

// NewService creates a retrieval engine. The query-embedding cache is
// owned by the returned instance.
func NewService(store Searcher, embedder domain.Embedder, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	return &Service{
		store:        store,
		embedder:     embedder,
		cache:        newQueryCache(opts.Model, opts.CacheSize),
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       logger,
	}
}

// Search runs one query. The mode string is parsed case-insensitively
// with aliases; empty defaults to vector. Keyword mode never calls the
// embedder.
func (s *Service) Search(ctx context.Context, query string, limit int, modeStr string) ([]domain.Hit, error) {
	m, err := parseMode(modeStr)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrDataValidation)
	}
	limit = s.clampLimit(limit)

	hits, err := s.searchOne(ctx, query, limit, m)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(m.String(), "error").Inc()
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(m.String(), "success").Inc()
	return hits, nil
}

// SearchBatch runs several queries under one mode. Blank queries are
// dropped; the surviving order is preserved in the result. In vector
// mode all uncached distinct queries are embedded in a single call.
// A failure of any sub-query fails the whole batch.
func (s *Service) SearchBatch(ctx context.Context, queries []string, limit int, modeStr string) ([]QueryResult, error) {
	m, err := parseMode(modeStr)
	if err != nil {
		return nil, err
	}

	kept := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			kept = append(kept, q)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no non-blank queries: %w", domain.ErrDataValidation)
	}
	if len(kept) > MaxBatchQueries {
		return nil, fmt.Errorf("%d queries exceeds the limit of %d: %w",
			len(kept), MaxBatchQueries, domain.ErrDataValidation)
	}
	limit = s.clampLimit(limit)

	// A single surviving query takes the one-shot path: no batch
	// embedder round trip for nothing.
	if len(kept) == 1 {
		hits, err := s.searchOne(ctx, kept[0], limit, m)
		if err != nil {
			metrics.SearchRequestsTotal.WithLabelValues(m.String(), "error").Inc()
			return nil, err
		}
		metrics.SearchRequestsTotal.WithLabelValues(m.String(), "success").Inc()
		return []QueryResult{{Query: kept[0], Hits: hits}}, nil
	}

	if m == mode.Vector {
		if err := s.warmCache(ctx, kept); err != nil {
			metrics.SearchRequestsTotal.WithLabelValues(m.String(), "error").Inc()
			return nil, err
		}
	}

	results := make([]QueryResult, 0, len(kept))
	for _, q := range kept {
		hits, err := s.searchOne(ctx, q, limit, m)
		if err != nil {
			metrics.SearchRequestsTotal.WithLabelValues(m.String(), "error").Inc()
			return nil, fmt.Errorf("query %q: %w", q, err)
		}
		results = append(results, QueryResult{Query: q, Hits: hits})
	}
	metrics.SearchRequestsTotal.WithLabelValues(m.String(), "success").Inc()
	return results, nil
}

func (s *Service) searchOne(ctx context.Context, query string, limit int, m mode.Mode) ([]domain.Hit, error) {
	if m == mode.Keyword {
		hits, err := s.store.SearchKeyword(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		return hits, nil
	}

	vec, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.SearchVector(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// queryVector resolves the embedding for one query, consulting the
// cache first. Repeated identical queries skip the remote call.
func (s *Service) queryVector(ctx context.Context, query string) ([]float32, error) {
	text := domain.NormalizeQuery(query)
	if vec, ok := s.cache.get(text); ok {
		return vec, nil
	}
	res, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	s.cache.put(text, res.Embedding)
	return res.Embedding, nil
}

// warmCache embeds every distinct uncached query of a batch in one
// remote call and fills the cache, so the per-query pass below is all
// hits.
func (s *Service) warmCache(ctx context.Context, queries []string) error {
	var misses []string
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		text := domain.NormalizeQuery(q)
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		if _, ok := s.cache.peek(text); !ok {
			misses = append(misses, text)
		}
	}
	if len(misses) == 0 {
		return nil
	}

	res, err := domain.EmbedTexts(ctx, s.embedder, misses)
	if err != nil {
		return fmt.Errorf("embed %d queries: %w", len(misses), err)
	}
	if len(res.Embeddings) != len(misses) {
		return fmt.Errorf("%d vectors for %d queries: %w",
			len(res.Embeddings), len(misses), domain.ErrPermanentRemote)
	}
	for i, text := range misses {
		s.cache.put(text, res.Embeddings[i])
	}
	s.logger.Debug("query cache warmed",
		zap.Int("queries", len(queries)),
		zap.Int("embedded", len(misses)))
	return nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

// parseMode folds an unknown mode string into the validation taxonomy
// so transports map it to a client error.
func parseMode(s string) (mode.Mode, error) {
	m, err := mode.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, domain.ErrDataValidation)
	}
	return m, nil
}

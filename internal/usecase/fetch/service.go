// Package fetch walks the paginated source catalog to completion,
// reconstructing a deduplicated corpus from an unreliable API.
package fetch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/trendllm/paperdex/internal/domain"
	"github.com/trendllm/paperdex/internal/metrics"
	"github.com/trendllm/paperdex/internal/retry"
)

// DefaultPageSize is the catalog's maximum page size.
const DefaultPageSize = 1000

// Options tune a single FetchAll run.
type Options struct {
	PageSize    int
	Concurrency int
	MaxRetries  int
	BackoffBase float64
	MaxRecords  int // 0 = fetch the whole corpus
}

// Stats reports what a run did.
type Stats struct {
	Total   int // authoritative corpus size (capped by MaxRecords)
	Pages   int // pages attempted, first page included
	Failed  int // pages lost to retry exhaustion or permanent errors
	Fetched int // deduplicated records returned
}

// Service drives paginated catalog fetches.
type Service struct {
	source Source
	logger *zap.Logger
}

// NewService creates a fetch service.
func NewService(source Source, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, logger: logger}
}

type pageResult struct {
	offset int
	papers []domain.Paper
	err    error
}

// FetchAll walks the catalog: page 0 alone first to learn the
// authoritative total, then the remaining offsets concurrently under a
// semaphore. Failed pages are logged and absorbed — the run returns a
// best-effort corpus rather than aborting; only a page 0 failure, which
// leaves no total to plan against, fails the run.
//
// The returned order is completion order, not catalog order. Records
// are deduplicated by their natural id, first occurrence winning.
func (s *Service) FetchAll(ctx context.Context, opts Options) ([]domain.Paper, Stats, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	policy := retry.Policy{Base: opts.BackoffBase, MaxRetries: opts.MaxRetries}

	first, err := s.fetchPage(ctx, 0, pageSize, policy)
	if err != nil {
		metrics.FetchPagesTotal.WithLabelValues("failed").Inc()
		return nil, Stats{Pages: 1, Failed: 1}, fmt.Errorf("first page: %w", err)
	}
	metrics.FetchPagesTotal.WithLabelValues("ok").Inc()

	total := first.Total
	if opts.MaxRecords > 0 && opts.MaxRecords < total {
		total = opts.MaxRecords
	}

	stats := Stats{Total: total, Pages: 1}
	papers := append(make([]domain.Paper, 0, total), first.Papers...)

	s.logger.Info("catalog listing started",
		zap.Int("reported_total", first.Total),
		zap.Int("effective_total", total),
		zap.Int("page_size", pageSize),
		zap.Int("concurrency", concurrency))

	// A corpus covered by page 0 alone needs no concurrent phase.
	if len(papers) < total {
		results := make(chan pageResult)
		sem := make(chan struct{}, concurrency)
		var wg sync.WaitGroup

		for off := pageSize; off < total; off += pageSize {
			wg.Add(1)
			go func(offset int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				page, err := s.fetchPage(ctx, offset, pageSize, policy)
				results <- pageResult{offset: offset, papers: page.Papers, err: err}
			}(off)
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		// Join all, collect successes, record failures separately. A
		// failed page never cancels its siblings.
		for res := range results {
			stats.Pages++
			if res.err != nil {
				stats.Failed++
				metrics.FetchPagesTotal.WithLabelValues("failed").Inc()
				s.logger.Warn("page failed, continuing with partial corpus",
					zap.Int("offset", res.offset), zap.Error(res.err))
				continue
			}
			metrics.FetchPagesTotal.WithLabelValues("ok").Inc()
			papers = append(papers, res.papers...)
		}
	}

	papers = dedupe(papers)
	if opts.MaxRecords > 0 && len(papers) > opts.MaxRecords {
		papers = papers[:opts.MaxRecords]
	}
	stats.Fetched = len(papers)
	metrics.FetchRecordsTotal.Add(float64(len(papers)))

	s.logger.Info("catalog listing finished",
		zap.Int("fetched", stats.Fetched),
		zap.Int("pages", stats.Pages),
		zap.Int("failed_pages", stats.Failed))

	return papers, stats, nil
}

// fetchPage retries one page through transient failures: honor the
// server's Retry-After when hinted, exponential backoff with jitter
// otherwise. Permanent errors and retry exhaustion fail the page.
func (s *Service) fetchPage(ctx context.Context, offset, limit int, policy retry.Policy) (domain.FetchPage, error) {
	for attempt := 0; ; attempt++ {
		page, err := s.source.ListNotes(ctx, offset, limit)
		if err == nil {
			return page, nil
		}
		if !domain.IsTransient(err) {
			return domain.FetchPage{}, err
		}
		if policy.Exhausted(attempt) {
			return domain.FetchPage{}, fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, err)
		}

		delay := policy.Delay(attempt)
		if hint, ok := domain.RetryAfterHint(err); ok {
			delay = hint
		}
		s.logger.Warn("transient page failure, backing off",
			zap.Int("offset", offset),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := retry.Sleep(ctx, delay); err != nil {
			return domain.FetchPage{}, fmt.Errorf("backoff interrupted: %w", err)
		}
	}
}

// dedupe drops repeat natural ids, keeping the first occurrence.
// Records without an id pass through; validation deals with them later.
func dedupe(papers []domain.Paper) []domain.Paper {
	seen := make(map[string]struct{}, len(papers))
	out := papers[:0]
	for _, p := range papers {
		if p.ID != "" {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
		}
		out = append(out, p)
	}
	return out
}

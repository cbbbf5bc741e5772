// Package ingest drives the embedding pipeline: validate records,
// upsert metadata, select what needs a vector, embed in bounded-
// concurrency batches, and commit each batch as it lands.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trendllm/paperdex/internal/domain"
	"github.com/trendllm/paperdex/internal/metrics"
	"github.com/trendllm/paperdex/internal/ratelimit"
	"github.com/trendllm/paperdex/internal/retry"
)

// DefaultBatchSize is the number of records embedded per API call.
const DefaultBatchSize = 64

// Mode selects which records get (re)embedded.
type Mode string

// Ingest modes. Force and All are synonyms: both re-embed every valid
// record. OnlyMissing embeds only records without a stored vector.
const (
	ModeForce       Mode = "force"
	ModeOnlyMissing Mode = "only-missing"
	ModeAll         Mode = "all"
)

// ParseMode normalizes a user-supplied mode string, defaulting to
// only-missing.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "only-missing", "missing":
		return ModeOnlyMissing, nil
	case "force":
		return ModeForce, nil
	case "all":
		return ModeAll, nil
	default:
		return "", fmt.Errorf("unknown ingest mode %q", s)
	}
}

// Options tune the pipeline.
type Options struct {
	BatchSize   int
	Workers     int
	Stagger     time.Duration // startup delay between batch launches
	MaxRetries  int
	BackoffBase float64
	RPS         float64 // embedding request budget, <=0 = unthrottled
	Dimensions  int     // expected vector width, 0 = unchecked
}

// Service is the embedding pipeline.
type Service struct {
	store      Store
	embedder   domain.Embedder
	limiter    *ratelimit.Limiter
	policy     retry.Policy
	batchSize  int
	workers    int
	stagger    time.Duration
	dimensions int
	logger     *zap.Logger
}

// NewService creates a pipeline over the given store and embedder.
func NewService(store Store, embedder domain.Embedder, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		store:      store,
		embedder:   embedder,
		limiter:    ratelimit.New(opts.RPS),
		policy:     retry.Policy{Base: opts.BackoffBase, MaxRetries: opts.MaxRetries},
		batchSize:  batchSize,
		workers:    workers,
		stagger:    opts.Stagger,
		dimensions: opts.Dimensions,
		logger:     logger,
	}
}

// Ingest runs the pipeline over the given records. Metadata for every
// valid record is upserted before any embedding happens, so interrupted
// runs never orphan metadata. Vectors are committed per batch; a batch
// that exhausts its retries aborts the run, cancels outstanding sibling
// batches, and leaves already-committed batches in place.
func (s *Service) Ingest(ctx context.Context, papers []domain.Paper, mode Mode) (Report, error) {
	if mode != ModeForce && mode != ModeOnlyMissing && mode != ModeAll {
		return Report{}, fmt.Errorf("unknown ingest mode %q", mode)
	}
	start := time.Now()
	report := Report{Received: len(papers)}

	// Validate and normalize; invalid records are skipped, never fatal.
	valid := make([]domain.Paper, 0, len(papers))
	for _, p := range papers {
		p.Normalize()
		if err := p.Validate(); err != nil {
			report.Invalid++
			metrics.IngestRecordsTotal.WithLabelValues("invalid").Inc()
			s.logger.Debug("skipping invalid record", zap.Error(err))
			continue
		}
		valid = append(valid, p)
	}

	// Metadata upsert comes before any embedding work.
	if len(valid) > 0 {
		n, err := s.store.UpsertPapers(ctx, valid)
		if err != nil {
			return report, fmt.Errorf("metadata upsert: %w", err)
		}
		report.Upserted = n
	}

	work := valid
	if mode == ModeOnlyMissing && len(valid) > 0 {
		embedded, err := s.store.LinksWithEmbedding(ctx)
		if err != nil {
			return report, fmt.Errorf("list embedded links: %w", err)
		}
		has := make(map[string]struct{}, len(embedded))
		for _, link := range embedded {
			has[link] = struct{}{}
		}
		work = make([]domain.Paper, 0, len(valid))
		for _, p := range valid {
			if _, ok := has[p.Link]; ok {
				report.AlreadyEmbedded++
				metrics.IngestRecordsTotal.WithLabelValues("skipped").Inc()
				continue
			}
			work = append(work, p)
		}
	}
	report.Selected = len(work)

	if len(work) == 0 {
		report.Elapsed = time.Since(start)
		s.logger.Info("nothing to embed",
			zap.Int("received", report.Received),
			zap.Int("already_embedded", report.AlreadyEmbedded),
			zap.Int("invalid", report.Invalid))
		return report, nil
	}

	batches := partition(work, s.batchSize)
	report.Batches = len(batches)
	prog := newProgress(len(work), s.logger)

	s.logger.Info("embedding run started",
		zap.String("mode", string(mode)),
		zap.Int("records", len(work)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", s.batchSize),
		zap.Int("workers", s.workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, batch := range batches {
		if gctx.Err() != nil {
			break // a sibling already failed; stop submitting
		}
		if i > 0 && s.stagger > 0 {
			if err := retry.Sleep(gctx, s.stagger); err != nil {
				break
			}
		}
		idx, b := i, batch
		g.Go(func() error {
			return s.processBatch(gctx, idx, b, prog)
		})
	}

	runErr := g.Wait()
	report.Embedded, report.PromptTokens, report.TotalTokens = prog.snapshot()
	report.Elapsed = time.Since(start)

	if runErr != nil {
		report.Failed = report.Selected - report.Embedded
		return report, fmt.Errorf("embedding run aborted: %w", runErr)
	}

	s.logger.Info("embedding run finished",
		zap.Int("embedded", report.Embedded),
		zap.Int("batches", report.Batches),
		zap.Int("total_tokens", report.TotalTokens),
		zap.Duration("elapsed", report.Elapsed.Round(time.Millisecond)))
	return report, nil
}

// processBatch embeds one batch and commits its vectors. Any error it
// returns cancels the errgroup context and with it the sibling batches.
func (s *Service) processBatch(ctx context.Context, idx int, batch []domain.Paper, prog *progress) error {
	if err := ctx.Err(); err != nil {
		return err // canceled by a failed sibling; skip needless work
	}

	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = domain.EmbedInput(p.Title, p.Abstract)
	}

	res, err := s.embedBatch(ctx, idx, texts)
	if err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("batch %d: %w", idx, err)
	}

	if len(res.Embeddings) != len(batch) {
		metrics.IngestBatchesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("batch %d: %d vectors for %d inputs: %w",
			idx, len(res.Embeddings), len(batch), domain.ErrPermanentRemote)
	}

	updates := make([]domain.VectorUpdate, len(batch))
	for i, p := range batch {
		if s.dimensions > 0 && len(res.Embeddings[i]) != s.dimensions {
			metrics.IngestBatchesTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("batch %d: vector width %d, expected %d: %w",
				idx, len(res.Embeddings[i]), s.dimensions, domain.ErrVectorDimMismatch)
		}
		updates[i] = domain.VectorUpdate{Link: p.Link, Vector: res.Embeddings[i]}
	}

	// Incremental commit: this batch's vectors land now regardless of
	// what later batches do.
	if err := s.store.StoreVectors(ctx, updates); err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("commit batch %d: %w", idx, err)
	}
	metrics.IngestBatchesTotal.WithLabelValues("committed").Inc()
	metrics.IngestRecordsTotal.WithLabelValues("embedded").Add(float64(len(batch)))

	prog.advance(len(batch), res.PromptTokens, res.TotalTokens)
	return nil
}

// embedBatch retries one batch through transient failures. Exhaustion
// and permanent errors propagate: an embedding batch failure is fatal
// to the run, unlike a lost fetch page.
func (s *Service) embedBatch(ctx context.Context, idx int, texts []string) (domain.BatchEmbeddingResult, error) {
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Acquire(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embed throttle: %w", err)
		}
		res, err := domain.EmbedTexts(ctx, s.embedder, texts)
		if err == nil {
			return res, nil
		}
		if !domain.IsTransient(err) {
			return domain.BatchEmbeddingResult{}, err
		}
		if s.policy.Exhausted(attempt) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, err)
		}

		delay := s.policy.Delay(attempt)
		if hint, ok := domain.RetryAfterHint(err); ok {
			delay = hint
		}
		s.logger.Warn("transient embed failure, backing off",
			zap.Int("batch", idx),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := retry.Sleep(ctx, delay); err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("backoff interrupted: %w", err)
		}
	}
}

// partition splits records into fixed-size batches, preserving order.
func partition(papers []domain.Paper, size int) [][]domain.Paper {
	batches := make([][]domain.Paper, 0, (len(papers)+size-1)/size)
	for start := 0; start < len(papers); start += size {
		end := start + size
		if end > len(papers) {
			end = len(papers)
		}
		batches = append(batches, papers[start:end])
	}
	return batches
}

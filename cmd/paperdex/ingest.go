package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trendllm/paperdex/internal/domain"
	"github.com/trendllm/paperdex/internal/transport/openreview"
	fetchuc "github.com/trendllm/paperdex/internal/usecase/fetch"
	ingestuc "github.com/trendllm/paperdex/internal/usecase/ingest"
)

var (
	ingestInput     string
	ingestFromFetch bool
	ingestMode      string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestInput, "input", "", "read the corpus from this JSON file")
	ingestCmd.Flags().BoolVar(&ingestFromFetch, "fetch", false, "fetch the corpus from the catalog first")
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "only-missing", "embedding selection: only-missing, force, or all")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Upsert the corpus and compute missing embeddings",
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	mode, err := ingestuc.ParseMode(ingestMode)
	if err != nil {
		return err
	}
	if ingestInput == "" && !ingestFromFetch {
		return fmt.Errorf("either --input or --fetch is required")
	}

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()

	var papers []domain.Paper
	var failedPages int
	switch {
	case ingestFromFetch:
		client := openreview.NewClient(openreview.Config{
			BaseURL: cfg.Source.BaseURL,
			VenueID: cfg.Source.VenueID,
			Domain:  cfg.Source.Domain,
			RPS:     cfg.Source.RPS,
			Logger:  logger,
		})
		var stats fetchuc.Stats
		papers, stats, err = fetchuc.NewService(client, logger).FetchAll(ctx, fetchuc.Options{
			PageSize:    cfg.Source.PageSize,
			Concurrency: cfg.Source.Concurrency,
			MaxRetries:  cfg.Source.MaxRetries,
			MaxRecords:  cfg.Source.MaxRecords,
		})
		if err != nil {
			return abortedf("fetch corpus: %w", err)
		}
		if stats.Failed > 0 {
			logger.Warn("continuing with a partial corpus", zap.Int("failed_pages", stats.Failed))
		}
		failedPages = stats.Failed
	default:
		data, err := os.ReadFile(ingestInput)
		if err != nil {
			return abortedf("read corpus: %w", err)
		}
		if err := json.Unmarshal(data, &papers); err != nil {
			return abortedf("parse corpus: %w", err)
		}
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return abortedf("%w", err)
	}
	defer store.Close()

	embedder := buildEmbedder(cfg, logger)
	svc := ingestuc.NewService(store, embedder, ingestuc.Options{
		BatchSize:  cfg.Ingest.BatchSize,
		Workers:    cfg.Ingest.Workers,
		Stagger:    time.Duration(cfg.Ingest.StaggerMS) * time.Millisecond,
		MaxRetries: cfg.Ingest.MaxRetries,
		RPS:        cfg.Ingest.RPS,
		Dimensions: cfg.Store.Dimensions,
	}, logger)

	report, runErr := svc.Ingest(ctx, papers, mode)
	printIngestReport(report)
	return ingestExitStatus(runErr, failedPages)
}

// ingestExitStatus folds a run's outcome into the exit contract: a
// failed pipeline aborts, lost catalog pages make an otherwise clean
// run partial, everything else is a full success.
func ingestExitStatus(runErr error, failedPages int) error {
	if runErr != nil {
		return abortedf("ingest: %w", runErr)
	}
	if failedPages > 0 {
		return partialf("%d catalog pages failed; corpus ingested without them", failedPages)
	}
	return nil
}

// printIngestReport writes the completion summary to stdout; it also
// runs for failed runs, so what did land is visible.
func printIngestReport(r ingestuc.Report) {
	fmt.Printf("received:  %d\n", r.Received)
	fmt.Printf("upserted:  %d\n", r.Upserted)
	fmt.Printf("skipped:   %d (invalid %d, already embedded %d)\n", r.Skipped(), r.Invalid, r.AlreadyEmbedded)
	fmt.Printf("embedded:  %d of %d selected\n", r.Embedded, r.Selected)
	if r.Failed > 0 {
		fmt.Printf("failed:    %d\n", r.Failed)
	}
	fmt.Printf("tokens:    %d\n", r.TotalTokens)
	fmt.Printf("elapsed:   %s\n", r.Elapsed.Round(time.Millisecond))
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	searchuc "github.com/trendllm/paperdex/internal/usecase/search"
)

var (
	searchLimit int
	searchMode  string
)

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (default: from config)")
	searchCmd.Flags().StringVar(&searchMode, "mode", "", "vector or keyword (default: vector)")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the corpus from the command line",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return abortedf("%w", err)
	}
	defer store.Close()

	engine := searchuc.NewService(store, buildEmbedder(cfg, logger), searchuc.Options{
		Model:        cfg.OpenAI.Model,
		CacheSize:    cfg.Search.CacheSize,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, logger)

	hits, err := engine.Search(cmd.Context(), args[0], searchLimit, searchMode)
	if err != nil {
		return abortedf("search: %w", err)
	}

	if len(hits) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, h := range hits {
		fmt.Printf("%2d. [%.4f] %s\n    %s\n", i+1, h.Score, h.Title, h.Link)
	}
	return nil
}

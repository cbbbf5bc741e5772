package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trendllm/paperdex/internal/config"
	"github.com/trendllm/paperdex/internal/db"
	dbPostgres "github.com/trendllm/paperdex/internal/db/postgres"
	dbRedis "github.com/trendllm/paperdex/internal/db/redis"
	"github.com/trendllm/paperdex/internal/domain"
	logpkg "github.com/trendllm/paperdex/internal/logger"
	"github.com/trendllm/paperdex/internal/metrics"
	openaiEmb "github.com/trendllm/paperdex/internal/transport/openai"
	embeddinguc "github.com/trendllm/paperdex/internal/usecase/embedding"
)

var configEnv string

var rootCmd = &cobra.Command{
	Use:   "paperdex",
	Short: "Paper corpus search service",
	Long: `paperdex ingests a paper corpus from the OpenReview catalog,
computes embeddings, and serves hybrid vector/keyword search over the
result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; the YAML config expands plain env vars.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "config-env", "",
		"configuration profile (default: ENV variable or \"local\")")
}

// bootstrap loads the configuration profile and builds the logger.
func bootstrap() (config.Config, *zap.Logger, error) {
	env := configEnv
	if env == "" {
		env = config.GetEnv()
	}
	cfg, err := config.Load(env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	metrics.Register()
	return cfg, logger, nil
}

// openStore builds the configured store driver and waits for it to
// answer. One endpoint, a bounded readiness poll, no host guessing.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (db.Store, error) {
	var store db.Store
	var err error

	switch cfg.Store.Driver {
	case "postgres":
		store, err = dbPostgres.NewStore(ctx, dbPostgres.Config{
			DSN:        cfg.Store.DSN,
			Dimensions: cfg.Store.Dimensions,
		})
	case "redis", "valkey":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Store.Addrs,
			Password:   cfg.Store.Password,
			KeyPrefix:  cfg.Store.KeyPrefix,
			Dimensions: cfg.Store.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Store.Driver, err)
	}

	timeout := time.Duration(cfg.Store.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("store not ready: %w", err)
	}
	logger.Info("connected to store",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("dimensions", cfg.Store.Dimensions))
	return store, nil
}

// buildEmbedder assembles the decorator chain: OpenAI transport inside,
// chunking and logging outside.
func buildEmbedder(cfg config.Config, logger *zap.Logger) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.Model,
		Dimensions: cfg.Store.Dimensions,
		Logger:     logger,
	})
	return embeddinguc.NewInstrumentedEmbedder(base, cfg.OpenAI.Model, logger)
}

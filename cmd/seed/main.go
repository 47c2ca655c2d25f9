// Command seed runs the collection seeding procedure once and exits. It is
// the operator-driven counterpart to the api process's startup seeding, for
// loading a fresh Qdrant instance ahead of a deploy.
package main

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeskmateAI/deskmate-engine/engine/domain"
	"github.com/DeskmateAI/deskmate-engine/engine/embed"
	"github.com/DeskmateAI/deskmate-engine/engine/ingest"
	"github.com/DeskmateAI/deskmate-engine/engine/seed"
	"github.com/DeskmateAI/deskmate-engine/engine/semantic"
)

func main() {
	var (
		qdrantAddr  = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		products    = flag.String("products", "seeddata/products.json", "path to the bulk product JSON file")
		manuals     = flag.String("manuals", "seeddata/manual-chunks.json", "path to the bulk manual chunk JSON file")
		batchSize   = flag.Int("batch-size", seed.DefaultBatchSize, "records per upsert request")
		rateLimit   = flag.Float64("rate", 0, "max upserts per second, 0 for unpaced")
		retry       = flag.Bool("retry", false, "retry batches that fail with a transient store error")
		ollamaURL   = flag.String("ollama", envOr("OLLAMA_URL", "http://localhost:11434"), "Ollama base URL")
		ollamaModel = flag.String("model", envOr("OLLAMA_MODEL", "all-minilm"), "Ollama embedding model")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	if err := run(*qdrantAddr, *products, *manuals, *batchSize, *rateLimit, *retry, *ollamaURL, *ollamaModel, logger); err != nil {
		logger.Error("seeding failed", "err", err)
		os.Exit(1)
	}
}

func run(qdrantAddr, products, manuals string, batchSize int, rateLimit float64, retry bool, ollamaURL, ollamaModel string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := semantic.New(qdrantAddr)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	provider := embed.NewOllama(ollamaURL, ollamaModel, domain.EmbeddingDimension)

	orch := seed.New(store, seed.Options{
		BatchSize:        batchSize,
		UpsertsPerSecond: rateLimit,
		RetryUnavailable: retry,
		Logger:           logger,
	})
	err = orch.Run(ctx,
		seed.CollectionSpec{
			Name:      "products",
			Dimension: domain.EmbeddingDimension,
			Source: func(ctx context.Context) iter.Seq2[semantic.Record, error] {
				return ingest.Products(ctx, products, provider)
			},
		},
		seed.CollectionSpec{
			Name:      "manuals",
			Dimension: domain.EmbeddingDimension,
			Source: func(ctx context.Context) iter.Seq2[semantic.Record, error] {
				return ingest.ManualChunks(ctx, manuals, provider)
			},
		},
	)
	if err != nil {
		return err
	}

	for name, state := range orch.States() {
		logger.Info("collection state", "collection", name, "state", state.String())
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

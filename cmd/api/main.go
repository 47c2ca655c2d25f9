// Command api is the retrieval engine's serving process. At startup it
// runs the one-shot seeding procedure for the product and manual
// collections, then serves read-only search endpoints backed by the
// vector store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DeskmateAI/deskmate-engine/engine/domain"
	"github.com/DeskmateAI/deskmate-engine/engine/embed"
	"github.com/DeskmateAI/deskmate-engine/engine/ingest"
	"github.com/DeskmateAI/deskmate-engine/engine/retrieval"
	"github.com/DeskmateAI/deskmate-engine/engine/seed"
	"github.com/DeskmateAI/deskmate-engine/engine/semantic"
	"github.com/DeskmateAI/deskmate-engine/pkg/metrics"
	"github.com/DeskmateAI/deskmate-engine/pkg/mid"
	"github.com/DeskmateAI/deskmate-engine/pkg/natsutil"
	"github.com/DeskmateAI/deskmate-engine/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port            string
	QdrantURL       string
	NatsURL         string
	CORSOrigin      string
	EmbedProvider   string
	OllamaURL       string
	OllamaModel     string
	OpenAIKey       string
	OpenAIModel     string
	ProductsSource  string
	ManualsSource   string
	SeedRetry       bool
	SeedUpsertsPerS float64
}

// Collection names are fixed for the deployment.
const (
	productsCollection = "products"
	manualsCollection  = "manuals"
)

func loadConfig() Config {
	upserts, _ := strconv.ParseFloat(envOr("SEED_UPSERTS_PER_SECOND", "0"), 64)
	return Config{
		Port:            envOr("PORT", "8080"),
		QdrantURL:       envOr("QDRANT_URL", "localhost:6334"),
		NatsURL:         os.Getenv("NATS_URL"),
		CORSOrigin:      envOr("CORS_ORIGIN", "*"),
		EmbedProvider:   envOr("EMBED_PROVIDER", "ollama"),
		OllamaURL:       envOr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:     envOr("OLLAMA_MODEL", "all-minilm"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		ProductsSource:  envOr("PRODUCTS_SOURCE", "seeddata/products.json"),
		ManualsSource:   envOr("MANUALS_SOURCE", "seeddata/manual-chunks.json"),
		SeedRetry:       envOr("SEED_RETRY_UNAVAILABLE", "") == "true",
		SeedUpsertsPerS: upserts,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Qdrant ---
	store, err := semantic.New(cfg.QdrantURL)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	// --- Embedding provider, breaker-wrapped so a dead backend fails fast ---
	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	provider = &breakerProvider{
		inner:   provider,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
	logger.Info("embedding provider ready", "provider", cfg.EmbedProvider, "dimension", provider.Dimension())

	// --- Optional NATS for seeding lifecycle events ---
	var events seed.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		events = &natsEvents{nc: nc}
		logger.Info("publishing seed events", "url", cfg.NatsURL)
	}

	// --- Seed collections before taking traffic ---
	orch := seed.New(store, seed.Options{
		UpsertsPerSecond: cfg.SeedUpsertsPerS,
		RetryUnavailable: cfg.SeedRetry,
		Events:           events,
		Logger:           logger,
	})
	err = orch.Run(ctx,
		seed.CollectionSpec{
			Name:      productsCollection,
			Dimension: domain.EmbeddingDimension,
			Source: func(ctx context.Context) iter.Seq2[semantic.Record, error] {
				return ingest.Products(ctx, cfg.ProductsSource, provider)
			},
		},
		seed.CollectionSpec{
			Name:      manualsCollection,
			Dimension: domain.EmbeddingDimension,
			Source: func(ctx context.Context) iter.Seq2[semantic.Record, error] {
				return ingest.ManualChunks(ctx, cfg.ManualsSource, provider)
			},
		},
	)
	if err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	// --- Retrieval services ---
	productSearch := retrieval.NewProductSearch(provider, store, productsCollection, logger)
	manualSearch := retrieval.NewManualSearch(provider, store, manualsCollection, logger)

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/search/products", handleProductSearch(productSearch, logger))
	mux.HandleFunc("POST /api/search/manuals", handleManualSearch(manualSearch, logger))
	mux.Handle("GET /metrics", metrics.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("deskmate-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func buildProvider(cfg Config) (embed.Provider, error) {
	switch cfg.EmbedProvider {
	case "ollama":
		return embed.NewOllama(cfg.OllamaURL, cfg.OllamaModel, domain.EmbeddingDimension), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return embed.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, domain.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unsupported embed provider %q", cfg.EmbedProvider)
	}
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// SearchRequest is the JSON body for both search endpoints. ProductID is
// only honored by the manual search.
type SearchRequest struct {
	Query     string `json:"query"`
	ProductID *int   `json:"productId,omitempty"`
}

func handleProductSearch(svc *retrieval.ProductSearch, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeSearchRequest(w, r)
		if !ok {
			return
		}
		results, err := svc.Search(r.Context(), req.Query)
		if err != nil {
			writeSearchError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}
}

func handleManualSearch(svc *retrieval.ManualSearch, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeSearchRequest(w, r)
		if !ok {
			return
		}
		results, err := svc.Search(r.Context(), req.Query, req.ProductID)
		if err != nil {
			writeSearchError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}
}

func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (SearchRequest, bool) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return req, false
	}
	if req.Query == "" {
		http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeSearchError distinguishes transient backend outages (503) from
// everything else (500). Zero hits never reach here; an empty result set
// is a valid 200.
func writeSearchError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("search failed", "err", err)
	switch {
	case errors.Is(err, semantic.ErrStoreUnavailable),
		errors.Is(err, embed.ErrUnavailable),
		errors.Is(err, resilience.ErrCircuitOpen):
		http.Error(w, `{"error":"search backend unavailable"}`, http.StatusServiceUnavailable)
	default:
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
	}
}

// --- Adapters ---

// breakerProvider runs embeddings through a circuit breaker.
type breakerProvider struct {
	inner   embed.Provider
	breaker *resilience.Breaker
}

func (p *breakerProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		vec, err = p.inner.Embed(ctx, text)
		return err
	})
	return vec, err
}

func (p *breakerProvider) Dimension() int { return p.inner.Dimension() }

// natsEvents publishes seed lifecycle events to NATS.
type natsEvents struct {
	nc *nats.Conn
}

func (p *natsEvents) Publish(ctx context.Context, ev seed.Event) error {
	return natsutil.Publish(ctx, p.nc, "deskmate.seed.events", ev)
}

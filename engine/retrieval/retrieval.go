// Package retrieval serves read queries against the seeded collections:
// it embeds the query text, runs a filtered similarity search, and maps raw
// hits into typed domain results. A zero-hit search returns an empty slice;
// only an actual failure returns an error, so callers can degrade to
// "no grounding context" without masking outages.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/DeskmateAI/deskmate-engine/engine/domain"
	"github.com/DeskmateAI/deskmate-engine/engine/embed"
	"github.com/DeskmateAI/deskmate-engine/engine/semantic"
	"github.com/DeskmateAI/deskmate-engine/pkg/metrics"
)

// ScoreThreshold is the minimum similarity for a hit to be surfaced.
const ScoreThreshold = 0.6

// Result caps per specialization.
const (
	productLimit = 5
	manualLimit  = 3
)

// DefaultSearchTimeout bounds a single store round-trip; chat-facing calls
// are latency sensitive.
const DefaultSearchTimeout = 5 * time.Second

// Searcher is the slice of the vector store the query path reads through.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, filter *semantic.Filter, scoreThreshold float32, limit int) ([]semantic.SearchHit, error)
}

// ProductSearch retrieves catalog products relevant to a query.
type ProductSearch struct {
	provider   embed.Provider
	store      Searcher
	collection string
	timeout    time.Duration
	log        *slog.Logger
}

// NewProductSearch creates a ProductSearch over the named collection.
func NewProductSearch(provider embed.Provider, store Searcher, collection string, logger *slog.Logger) *ProductSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductSearch{
		provider:   provider,
		store:      store,
		collection: collection,
		timeout:    DefaultSearchTimeout,
		log:        logger,
	}
}

// Search returns up to 5 products scoring at least the relevance threshold,
// best first. No retries here; store and embedding failures propagate typed.
func (s *ProductSearch) Search(ctx context.Context, query string) ([]domain.ProductResult, error) {
	hits, err := search(ctx, s.provider, s.store, s.collection, query, nil, productLimit, s.timeout)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ProductResult, 0, len(hits))
	for _, h := range hits {
		productID, err := domain.ParseProductSource(h.Record.ExternalSourceName)
		if err != nil {
			s.log.Warn("product hit with unparsable source tag, dropping",
				"id", h.Record.ID, "tag", h.Record.ExternalSourceName)
			continue
		}
		results = append(results, domain.ProductResult{
			ProductID: productID,
			Brand:     h.Record.AdditionalMetadata,
			Model:     h.Record.Text,
			Score:     h.Score,
		})
	}
	return results, nil
}

// ManualSearch retrieves manual passages relevant to a query, optionally
// scoped to a single product.
type ManualSearch struct {
	provider   embed.Provider
	store      Searcher
	collection string
	timeout    time.Duration
	log        *slog.Logger
}

// NewManualSearch creates a ManualSearch over the named collection.
func NewManualSearch(provider embed.Provider, store Searcher, collection string, logger *slog.Logger) *ManualSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManualSearch{
		provider:   provider,
		store:      store,
		collection: collection,
		timeout:    DefaultSearchTimeout,
		log:        logger,
	}
}

// Search returns up to 3 manual passages scoring at least the relevance
// threshold. When productID is non-nil only passages of that product's
// manual are considered; the filter is typed here and only encoded at the
// store boundary.
func (s *ManualSearch) Search(ctx context.Context, query string, productID *int) ([]domain.ManualResult, error) {
	var filter *semantic.Filter
	if productID != nil {
		filter = &semantic.Filter{Key: domain.ProductSourceKey, Value: strconv.Itoa(*productID)}
	}

	hits, err := search(ctx, s.provider, s.store, s.collection, query, filter, manualLimit, s.timeout)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ManualResult, 0, len(hits))
	for _, h := range hits {
		pid, err := domain.ParseProductSource(h.Record.ExternalSourceName)
		if err != nil {
			s.log.Warn("manual hit with unparsable source tag, dropping",
				"id", h.Record.ID, "tag", h.Record.ExternalSourceName)
			continue
		}
		results = append(results, domain.ManualResult{
			ProductID:  pid,
			PageNumber: domain.ParsePageMetadata(h.Record.AdditionalMetadata),
			Text:       h.Record.Text,
			Score:      h.Score,
		})
	}
	return results, nil
}

// search embeds the query and runs one bounded similarity search.
func search(ctx context.Context, provider embed.Provider, store Searcher, collection, query string, filter *semantic.Filter, limit int, timeout time.Duration) ([]semantic.SearchHit, error) {
	ctx, span := otel.Tracer("engine/retrieval").Start(ctx, "search "+collection)
	defer span.End()
	start := time.Now()

	embedStart := time.Now()
	vector, err := provider.Embed(ctx, query)
	metrics.EmbedDuration.Observe(time.Since(embedStart).Seconds())
	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		metrics.SearchRequests.WithLabelValues(collection, "error").Inc()
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hits, err := store.Search(searchCtx, collection, vector, filter, ScoreThreshold, limit)
	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		metrics.SearchRequests.WithLabelValues(collection, "error").Inc()
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	metrics.SearchRequests.WithLabelValues(collection, "ok").Inc()
	metrics.SearchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	return hits, nil
}

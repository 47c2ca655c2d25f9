// Package seed populates vector collections from bulk sources exactly once.
// Idempotency is existence-based: a collection that already exists is
// treated as fully seeded and its source is never opened. A crash between
// collection creation and the final upsert therefore leaves a collection
// that later runs will skip; re-seeding after such a crash requires
// dropping the collection first. This matches the original semantics and
// is deliberate, not an oversight.
package seed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/DeskmateAI/deskmate-engine/engine/ingest"
	"github.com/DeskmateAI/deskmate-engine/engine/semantic"
	"github.com/DeskmateAI/deskmate-engine/pkg/fn"
	"github.com/DeskmateAI/deskmate-engine/pkg/metrics"
)

// DefaultBatchSize bounds a single upsert request and the orchestrator's
// peak memory: the source is never read further than one batch ahead.
const DefaultBatchSize = 1000

// State of a collection within a seeding run.
type State int

const (
	Unseeded State = iota
	Seeding
	Seeded
)

func (s State) String() string {
	switch s {
	case Unseeded:
		return "unseeded"
	case Seeding:
		return "seeding"
	case Seeded:
		return "seeded"
	default:
		return "unknown"
	}
}

// Store is the slice of the vector store the orchestrator writes through.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, collection string, records []semantic.Record) error
}

// Source lazily opens a bulk seed source. It is invoked only when the
// collection actually needs seeding, and the returned sequence is
// single-pass.
type Source func(ctx context.Context) iter.Seq2[semantic.Record, error]

// CollectionSpec names one collection to seed.
type CollectionSpec struct {
	Name      string
	Dimension int
	Source    Source
}

// Event describes a seeding lifecycle transition, published to interested
// listeners (NATS in production) when a publisher is wired.
type Event struct {
	Type       string    `json:"type"` // started | completed | skipped | failed
	Collection string    `json:"collection"`
	Records    int       `json:"records"`
	Batches    int       `json:"batches"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// EventPublisher receives seeding lifecycle events. Publish failures are
// logged and never fail the run.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Options configures an Orchestrator.
type Options struct {
	// BatchSize per upsert request; DefaultBatchSize when zero.
	BatchSize int
	// UpsertsPerSecond paces bulk writes to avoid overloading the store
	// during load. Zero means unpaced.
	UpsertsPerSecond float64
	// RetryUnavailable enables bounded backoff retries of a batch upsert
	// that failed with semantic.ErrStoreUnavailable. Off by default: the
	// original behavior fails the whole run on the first transient error.
	RetryUnavailable bool
	Events           EventPublisher
	Logger           *slog.Logger
}

// Orchestrator drives the one-shot seeding procedure. Collections are
// independent and seeded concurrently; within a collection the pipeline is
// strictly sequential so at most one batch is in flight.
type Orchestrator struct {
	store   Store
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger

	mu     sync.Mutex
	states map[string]State
}

// New creates an Orchestrator over the given store.
func New(store Store, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.UpsertsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.UpsertsPerSecond), 1)
	}
	return &Orchestrator{
		store:   store,
		opts:    opts,
		limiter: limiter,
		log:     log,
		states:  make(map[string]State),
	}
}

// States returns a snapshot of per-collection seeding states.
func (o *Orchestrator) States() map[string]State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]State, len(o.states))
	for k, v := range o.states {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) setState(name string, s State) {
	o.mu.Lock()
	o.states[name] = s
	o.mu.Unlock()
}

// Run seeds every spec, concurrently across collections, and returns the
// first failure if any.
func (o *Orchestrator) Run(ctx context.Context, specs ...CollectionSpec) error {
	fns := fn.Map(specs, func(spec CollectionSpec) func() fn.Result[string] {
		return func() fn.Result[string] {
			if err := o.seedCollection(ctx, spec); err != nil {
				return fn.Err[string](err)
			}
			return fn.Ok(spec.Name)
		}
	})
	_, err := fn.FanOutResult(fns...).Unwrap()
	return err
}

func (o *Orchestrator) seedCollection(ctx context.Context, spec CollectionSpec) error {
	ctx, span := otel.Tracer("engine/seed").Start(ctx, "seed "+spec.Name)
	defer span.End()

	o.setState(spec.Name, Unseeded)

	existing, err := o.store.ListCollections(ctx)
	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("seed %s: %w", spec.Name, err)
	}
	if slices.Contains(existing, spec.Name) {
		o.setState(spec.Name, Seeded)
		o.log.Info("collection already seeded, skipping", "collection", spec.Name)
		metrics.SeedSkipped.WithLabelValues(spec.Name).Inc()
		o.publish(ctx, Event{Type: "skipped", Collection: spec.Name, At: time.Now()})
		return nil
	}

	o.setState(spec.Name, Seeding)
	o.log.Info("seeding collection", "collection", spec.Name, "dimension", spec.Dimension)
	o.publish(ctx, Event{Type: "started", Collection: spec.Name, At: time.Now()})
	start := time.Now()

	if err := o.store.CreateCollection(ctx, spec.Name, spec.Dimension); err != nil {
		return o.fail(ctx, span, spec.Name, err)
	}

	var records, batches int
	for batch, err := range ingest.Batches(spec.Source(ctx), o.opts.BatchSize) {
		if err != nil {
			return o.fail(ctx, span, spec.Name, err)
		}
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return o.fail(ctx, span, spec.Name, err)
			}
		}
		if err := o.upsertBatch(ctx, spec.Name, batch); err != nil {
			return o.fail(ctx, span, spec.Name, err)
		}
		records += len(batch)
		batches++
		metrics.SeedRecords.WithLabelValues(spec.Name).Add(float64(len(batch)))
		metrics.SeedBatches.WithLabelValues(spec.Name).Inc()
		o.log.Debug("batch upserted", "collection", spec.Name, "batch", batches, "size", len(batch))
	}

	o.setState(spec.Name, Seeded)
	metrics.SeedDuration.WithLabelValues(spec.Name).Observe(time.Since(start).Seconds())
	o.log.Info("seeding complete",
		"collection", spec.Name,
		"records", records,
		"batches", batches,
		"duration", time.Since(start),
	)
	o.publish(ctx, Event{
		Type:       "completed",
		Collection: spec.Name,
		Records:    records,
		Batches:    batches,
		At:         time.Now(),
	})
	return nil
}

// upsertBatch writes one batch, optionally retrying transient store
// failures. Every other error class aborts on first sight; a dimension
// mismatch in particular is a data integrity violation that must kill the
// run rather than drop records.
func (o *Orchestrator) upsertBatch(ctx context.Context, collection string, batch []semantic.Record) error {
	if !o.opts.RetryUnavailable {
		return o.store.Upsert(ctx, collection, batch)
	}
	opts := fn.DefaultRetry
	opts.Retryable = func(err error) bool {
		return errors.Is(err, semantic.ErrStoreUnavailable)
	}
	return fn.Retry(ctx, opts, func(ctx context.Context) error {
		return o.store.Upsert(ctx, collection, batch)
	})
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, name string, err error) error {
	span.SetStatus(otelcodes.Error, err.Error())
	o.publish(ctx, Event{Type: "failed", Collection: name, Error: err.Error(), At: time.Now()})
	return fmt.Errorf("seed %s: %w", name, err)
}

func (o *Orchestrator) publish(ctx context.Context, ev Event) {
	if o.opts.Events == nil {
		return
	}
	if err := o.opts.Events.Publish(ctx, ev); err != nil {
		o.log.Warn("seed event publish failed", "collection", ev.Collection, "type", ev.Type, "err", err)
	}
}

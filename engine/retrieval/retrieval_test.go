package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/DeskmateAI/deskmate-engine/engine/domain"
	"github.com/DeskmateAI/deskmate-engine/engine/semantic"
)

type fakeProvider struct {
	vector []float32
	err    error
	texts  []string
}

func (p *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.texts = append(p.texts, text)
	return p.vector, nil
}

func (p *fakeProvider) Dimension() int { return len(p.vector) }

type fakeSearcher struct {
	hits []semantic.SearchHit
	err  error

	collection string
	vector     []float32
	filter     *semantic.Filter
	threshold  float32
	limit      int
}

func (s *fakeSearcher) Search(_ context.Context, collection string, vector []float32, filter *semantic.Filter, scoreThreshold float32, limit int) ([]semantic.SearchHit, error) {
	s.collection = collection
	s.vector = vector
	s.filter = filter
	s.threshold = scoreThreshold
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func productHit(score float32, productID int, brand, model string) semantic.SearchHit {
	return semantic.SearchHit{
		Score: score,
		Record: semantic.Record{
			ID:                 "product:1",
			Text:               model,
			ExternalSourceName: domain.ProductSourceName(productID),
			AdditionalMetadata: brand,
		},
	}
}

func manualHit(score float32, productID, page int, text string) semantic.SearchHit {
	return semantic.SearchHit{
		Score: score,
		Record: semantic.Record{
			ID:                 "manualchunk:1",
			Text:               text,
			ExternalSourceName: domain.ProductSourceName(productID),
			AdditionalMetadata: domain.PageMetadata(page),
		},
	}
}

func TestProductSearchMapsHits(t *testing.T) {
	provider := &fakeProvider{vector: []float32{0.1, 0.2}}
	store := &fakeSearcher{hits: []semantic.SearchHit{
		productHit(0.92, 4, "Acme", "X100"),
		productHit(0.71, 9, "Globex", "Z9"),
	}}
	svc := NewProductSearch(provider, store, "products", nil)

	results, err := svc.Search(context.Background(), "noisy washing machine")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	first := results[0]
	if first.ProductID != 4 || first.Brand != "Acme" || first.Model != "X100" || first.Score != 0.92 {
		t.Errorf("first result = %+v", first)
	}

	if store.collection != "products" {
		t.Errorf("collection = %q, want products", store.collection)
	}
	if store.limit != 5 {
		t.Errorf("limit = %d, want 5", store.limit)
	}
	if store.threshold != ScoreThreshold {
		t.Errorf("threshold = %v, want %v", store.threshold, ScoreThreshold)
	}
	if store.filter != nil {
		t.Error("product search sent a filter")
	}
	if len(provider.texts) != 1 || provider.texts[0] != "noisy washing machine" {
		t.Errorf("embedded texts = %v", provider.texts)
	}
}

func TestProductSearchDropsUnparsableHits(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1}}
	store := &fakeSearcher{hits: []semantic.SearchHit{
		productHit(0.9, 4, "Acme", "X100"),
		{Score: 0.8, Record: semantic.Record{ExternalSourceName: "garbage"}},
	}}
	svc := NewProductSearch(provider, store, "products", nil)

	results, err := svc.Search(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ProductID != 4 {
		t.Errorf("results = %+v, want only the parsable hit", results)
	}
}

func TestProductSearchZeroHits(t *testing.T) {
	svc := NewProductSearch(&fakeProvider{vector: []float32{1}}, &fakeSearcher{}, "products", nil)
	results, err := svc.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("zero hits returned error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestProductSearchPropagatesEmbedError(t *testing.T) {
	boom := errors.New("embedder down")
	svc := NewProductSearch(&fakeProvider{err: boom}, &fakeSearcher{}, "products", nil)
	if _, err := svc.Search(context.Background(), "q"); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestProductSearchPropagatesStoreError(t *testing.T) {
	store := &fakeSearcher{err: semantic.ErrStoreUnavailable}
	svc := NewProductSearch(&fakeProvider{vector: []float32{1}}, store, "products", nil)
	if _, err := svc.Search(context.Background(), "q"); !errors.Is(err, semantic.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
}

func TestManualSearchUnscoped(t *testing.T) {
	store := &fakeSearcher{hits: []semantic.SearchHit{
		manualHit(0.88, 4, 12, "press and hold the reset button"),
	}}
	svc := NewManualSearch(&fakeProvider{vector: []float32{1}}, store, "manuals", nil)

	results, err := svc.Search(context.Background(), "how do I reset", nil)
	if err != nil {
		t.Fatal(err)
	}

	if store.filter != nil {
		t.Error("unscoped search sent a filter")
	}
	if store.limit != 3 {
		t.Errorf("limit = %d, want 3", store.limit)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.ProductID != 4 || r.PageNumber != 12 || r.Text != "press and hold the reset button" || r.Score != 0.88 {
		t.Errorf("result = %+v", r)
	}
}

func TestManualSearchScopedToProduct(t *testing.T) {
	store := &fakeSearcher{}
	svc := NewManualSearch(&fakeProvider{vector: []float32{1}}, store, "manuals", nil)

	productID := 42
	if _, err := svc.Search(context.Background(), "q", &productID); err != nil {
		t.Fatal(err)
	}

	if store.filter == nil {
		t.Fatal("scoped search sent no filter")
	}
	if store.filter.Key != domain.ProductSourceKey || store.filter.Value != "42" {
		t.Errorf("filter = %+v, want {productid 42}", store.filter)
	}
}

// Package domain holds the shared types and conventions of the retrieval
// engine: catalog products, manual passages, typed search results, and the
// source-tagging format used for metadata filtering.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EmbeddingDimension is the fixed vector dimensionality for this deployment.
// Every collection is created with it and every record must match it.
const EmbeddingDimension = 384

// Product is one catalog entry from the bulk product source.
type Product struct {
	ProductID     int       `json:"productId"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	NameEmbedding []float32 `json:"nameEmbedding,omitempty"`
}

// ManualChunk is one passage of a product manual from the bulk manual source.
// A chunk ships its vector either as a float array or as base64-encoded
// little-endian float32 bytes; when both are absent the chunk text is
// embedded at ingestion time.
type ManualChunk struct {
	ChunkID        int    `json:"id"`
	ProductID      int    `json:"productId"`
	PageNumber     int    `json:"pageNumber"`
	Text           string `json:"text"`
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingBytes []byte    `json:"embeddingBytes,omitempty"`
}

// ProductResult is a ranked product hit returned to the assistant.
type ProductResult struct {
	ProductID int     `json:"productId"`
	Brand     string  `json:"brand"`
	Model     string  `json:"model"`
	Score     float32 `json:"score"`
}

// ManualResult is a ranked manual passage returned to the assistant.
type ManualResult struct {
	ProductID  int     `json:"productId"`
	PageNumber int     `json:"pageNumber"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// ProductSourceKey is the filter key under which records are tagged with
// their owning product. Consumers filtering by product must use exactly
// this key; the store serializes it to the "productid:{id}" form.
const ProductSourceKey = "productid"

// ProductSourceName renders the external source tag for a product id.
func ProductSourceName(productID int) string {
	return fmt.Sprintf("%s:%d", ProductSourceKey, productID)
}

// ParseProductSource recovers the product id from an external source tag.
func ParseProductSource(tag string) (int, error) {
	rest, ok := strings.CutPrefix(tag, ProductSourceKey+":")
	if !ok {
		return 0, fmt.Errorf("domain: source tag %q: %w", tag, ErrBadSourceTag)
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("domain: source tag %q: %w", tag, ErrBadSourceTag)
	}
	return id, nil
}

// PageMetadata renders the additional-metadata field for a manual page.
func PageMetadata(pageNumber int) string {
	return "page:" + strconv.Itoa(pageNumber)
}

// ParsePageMetadata recovers a page number from additional metadata.
// Returns 0 for metadata that carries no page tag.
func ParsePageMetadata(meta string) int {
	rest, ok := strings.CutPrefix(meta, "page:")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

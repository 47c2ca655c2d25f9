package ingest

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"os"
	"strconv"

	"github.com/DeskmateAI/deskmate-engine/engine/domain"
	"github.com/DeskmateAI/deskmate-engine/engine/embed"
	"github.com/DeskmateAI/deskmate-engine/engine/semantic"
)

// Products streams the bulk product source at path as store records. The
// file holds one JSON array; it is decoded element by element and never
// loaded whole. The file is not opened until the sequence is first pulled.
// Products lacking a precomputed name embedding are embedded via provider.
func Products(ctx context.Context, path string, provider embed.Provider) iter.Seq2[semantic.Record, error] {
	return func(yield func(semantic.Record, error) bool) {
		var zero semantic.Record
		f, err := os.Open(path)
		if err != nil {
			yield(zero, fmt.Errorf("ingest: open products source: %w", err))
			return
		}
		defer f.Close()

		dec := json.NewDecoder(bufio.NewReader(f))
		if _, err := dec.Token(); err != nil {
			yield(zero, fmt.Errorf("ingest: products source %s: %w", path, err))
			return
		}
		for dec.More() {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			var p domain.Product
			if err := dec.Decode(&p); err != nil {
				yield(zero, fmt.Errorf("ingest: products source %s: %w", path, err))
				return
			}
			if err := domain.ValidateProduct(p); err != nil {
				yield(zero, fmt.Errorf("ingest: products source %s: %w", path, err))
				return
			}
			rec, err := productRecord(ctx, p, provider)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// ManualChunks streams the bulk manual-chunk source at path as store
// records, with the same lazy, single-pass semantics as Products.
func ManualChunks(ctx context.Context, path string, provider embed.Provider) iter.Seq2[semantic.Record, error] {
	return func(yield func(semantic.Record, error) bool) {
		var zero semantic.Record
		f, err := os.Open(path)
		if err != nil {
			yield(zero, fmt.Errorf("ingest: open manual source: %w", err))
			return
		}
		defer f.Close()

		dec := json.NewDecoder(bufio.NewReader(f))
		if _, err := dec.Token(); err != nil {
			yield(zero, fmt.Errorf("ingest: manual source %s: %w", path, err))
			return
		}
		for dec.More() {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			var c domain.ManualChunk
			if err := dec.Decode(&c); err != nil {
				yield(zero, fmt.Errorf("ingest: manual source %s: %w", path, err))
				return
			}
			if err := domain.ValidateManualChunk(c); err != nil {
				yield(zero, fmt.Errorf("ingest: manual source %s: %w", path, err))
				return
			}
			rec, err := manualChunkRecord(ctx, c, provider)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func productRecord(ctx context.Context, p domain.Product, provider embed.Provider) (semantic.Record, error) {
	vec := p.NameEmbedding
	if len(vec) == 0 {
		var err error
		vec, err = provider.Embed(ctx, p.Brand+" "+p.Model)
		if err != nil {
			return semantic.Record{}, fmt.Errorf("ingest: embed product %d: %w", p.ProductID, err)
		}
	}
	return semantic.Record{
		ID:                 "product:" + strconv.Itoa(p.ProductID),
		Vector:             vec,
		Text:               p.Model,
		ExternalSourceName: domain.ProductSourceName(p.ProductID),
		AdditionalMetadata: p.Brand,
	}, nil
}

func manualChunkRecord(ctx context.Context, c domain.ManualChunk, provider embed.Provider) (semantic.Record, error) {
	vec := c.Embedding
	if len(vec) == 0 && len(c.EmbeddingBytes) > 0 {
		var err error
		vec, err = vectorFromBytes(c.EmbeddingBytes)
		if err != nil {
			return semantic.Record{}, fmt.Errorf("ingest: manual chunk %d: %w", c.ChunkID, err)
		}
	}
	if len(vec) == 0 {
		var err error
		vec, err = provider.Embed(ctx, c.Text)
		if err != nil {
			return semantic.Record{}, fmt.Errorf("ingest: embed manual chunk %d: %w", c.ChunkID, err)
		}
	}
	return semantic.Record{
		ID:                 "manualchunk:" + strconv.Itoa(c.ChunkID),
		Vector:             vec,
		Text:               c.Text,
		ExternalSourceName: domain.ProductSourceName(c.ProductID),
		AdditionalMetadata: domain.PageMetadata(c.PageNumber),
	}, nil
}

// vectorFromBytes decodes a raw embedding shipped as little-endian float32s.
func vectorFromBytes(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("raw embedding has %d bytes, not a float32 multiple", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}

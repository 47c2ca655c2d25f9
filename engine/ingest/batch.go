// Package ingest reads bulk seed sources as lazy record sequences and
// groups them into bounded batches for upsert. It never talks to the
// store; the seed orchestrator drives it.
package ingest

import (
	"fmt"
	"iter"
)

// Batches groups a lazily-produced sequence into ordered batches of up to
// size elements; the last batch may be shorter. The sequence is consumed
// single-pass and at most one batch is resident at a time: the yielded
// slice is reused, so it is only valid until the next iteration step. A
// source error is forwarded once and ends the sequence.
func Batches[T any](src iter.Seq2[T, error], size int) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		if size <= 0 {
			yield(nil, fmt.Errorf("ingest: batch size %d must be positive", size))
			return
		}
		batch := make([]T, 0, size)
		for v, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			batch = append(batch, v)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = batch[:0]
			}
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

package ingest

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"testing"
)

func intSource(n int) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := 0; i < n; i++ {
			if !yield(i, nil) {
				return
			}
		}
	}
}

func failAfter(n int, failure error) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := 0; i < n; i++ {
			if !yield(i, nil) {
				return
			}
		}
		yield(0, failure)
	}
}

func TestBatchesSplitsAndPreservesOrder(t *testing.T) {
	var sizes []int
	var all []int
	for batch, err := range Batches(intSource(2500), 1000) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sizes = append(sizes, len(batch))
		// The yielded slice is reused; copy before the next step.
		all = append(all, batch...)
	}

	if !slices.Equal(sizes, []int{1000, 1000, 500}) {
		t.Errorf("batch sizes = %v, want [1000 1000 500]", sizes)
	}
	for i, v := range all {
		if v != i {
			t.Fatalf("element %d = %d, order not preserved", i, v)
		}
	}
}

func TestBatchesExactMultiple(t *testing.T) {
	var count int
	for batch, err := range Batches(intSource(2000), 1000) {
		if err != nil {
			t.Fatal(err)
		}
		if len(batch) != 1000 {
			t.Errorf("batch size = %d, want 1000", len(batch))
		}
		count++
	}
	if count != 2 {
		t.Errorf("batches = %d, want 2", count)
	}
}

func TestBatchesEmptySource(t *testing.T) {
	for range Batches(intSource(0), 10) {
		t.Fatal("empty source yielded a batch")
	}
}

func TestBatchesForwardsSourceError(t *testing.T) {
	boom := errors.New("decode failed")
	var batches int
	var got error
	for batch, err := range Batches(failAfter(15, boom), 10) {
		if err != nil {
			got = err
			continue
		}
		batches = batches + 1
		if len(batch) != 10 {
			t.Errorf("batch size = %d, want 10", len(batch))
		}
	}
	if batches != 1 {
		t.Errorf("full batches before failure = %d, want 1", batches)
	}
	if !errors.Is(got, boom) {
		t.Errorf("error = %v, want %v", got, boom)
	}
}

func TestBatchesRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			var got error
			for _, err := range Batches(intSource(5), size) {
				got = err
			}
			if got == nil {
				t.Error("no error for non-positive batch size")
			}
		})
	}
}

func TestBatchesStopsWhenConsumerBreaks(t *testing.T) {
	pulled := 0
	src := func(yield func(int, error) bool) {
		for i := 0; ; i++ {
			pulled++
			if !yield(i, nil) {
				return
			}
		}
	}

	for range Batches(iter.Seq2[int, error](src), 10) {
		break
	}
	if pulled > 10 {
		t.Errorf("source pulled %d elements after consumer stopped, want <= 10", pulled)
	}
}

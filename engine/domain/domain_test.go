package domain

import (
	"errors"
	"testing"
)

func TestProductSourceRoundTrip(t *testing.T) {
	tag := ProductSourceName(42)
	if tag != "productid:42" {
		t.Fatalf("ProductSourceName(42) = %q, want productid:42", tag)
	}
	id, err := ParseProductSource(tag)
	if err != nil {
		t.Fatalf("ParseProductSource(%q) error: %v", tag, err)
	}
	if id != 42 {
		t.Errorf("ParseProductSource(%q) = %d, want 42", tag, id)
	}
}

func TestParseProductSourceRejectsBadTags(t *testing.T) {
	cases := []string{
		"",
		"productid:",
		"productid:abc",
		"chunkid:42",
		"42",
	}
	for _, tag := range cases {
		if _, err := ParseProductSource(tag); !errors.Is(err, ErrBadSourceTag) {
			t.Errorf("ParseProductSource(%q) error = %v, want ErrBadSourceTag", tag, err)
		}
	}
}

func TestPageMetadataRoundTrip(t *testing.T) {
	if got := PageMetadata(7); got != "page:7" {
		t.Fatalf("PageMetadata(7) = %q, want page:7", got)
	}
	if got := ParsePageMetadata("page:7"); got != 7 {
		t.Errorf("ParsePageMetadata(page:7) = %d, want 7", got)
	}
	if got := ParsePageMetadata("brand name"); got != 0 {
		t.Errorf("ParsePageMetadata on non-page metadata = %d, want 0", got)
	}
	if got := ParsePageMetadata("page:x"); got != 0 {
		t.Errorf("ParsePageMetadata(page:x) = %d, want 0", got)
	}
}

func TestValidateProduct(t *testing.T) {
	valid := Product{ProductID: 1, Brand: "Acme", Model: "X100"}
	if err := ValidateProduct(valid); err != nil {
		t.Fatalf("valid product rejected: %v", err)
	}

	if err := ValidateProduct(Product{Brand: "Acme", Model: "X100"}); !errors.Is(err, ErrMissingID) {
		t.Errorf("missing productId: error = %v, want ErrMissingID", err)
	}
	if err := ValidateProduct(Product{ProductID: 1, Brand: "Acme"}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("missing model: error = %v, want ErrEmptyText", err)
	}
}

func TestValidateManualChunk(t *testing.T) {
	valid := ManualChunk{ChunkID: 1, ProductID: 2, PageNumber: 3, Text: "hold the reset button"}
	if err := ValidateManualChunk(valid); err != nil {
		t.Fatalf("valid chunk rejected: %v", err)
	}

	cases := []struct {
		name  string
		chunk ManualChunk
		want  error
	}{
		{"missing chunk id", ManualChunk{ProductID: 2, Text: "x"}, ErrMissingID},
		{"missing product id", ManualChunk{ChunkID: 1, Text: "x"}, ErrMissingID},
		{"empty text", ManualChunk{ChunkID: 1, ProductID: 2}, ErrEmptyText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateManualChunk(tc.chunk); !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := NewValidationError("model", "", ErrEmptyText)
	if !errors.Is(err, ErrEmptyText) {
		t.Error("ValidationError does not unwrap to its sentinel")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatal("errors.As failed for *ValidationError")
	}
	if verr.Field != "model" {
		t.Errorf("Field = %q, want model", verr.Field)
	}
}

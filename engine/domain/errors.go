package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for source-record validation.
var (
	ErrMissingID    = errors.New("missing record id")
	ErrEmptyText    = errors.New("empty text")
	ErrBadSourceTag = errors.New("malformed source tag")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// ValidateProduct checks the fields ingestion depends on.
func ValidateProduct(p Product) error {
	if p.ProductID <= 0 {
		return NewValidationError("productId", fmt.Sprint(p.ProductID), ErrMissingID)
	}
	if p.Model == "" {
		return NewValidationError("model", "", ErrEmptyText)
	}
	return nil
}

// ValidateManualChunk checks the fields ingestion depends on.
func ValidateManualChunk(c ManualChunk) error {
	if c.ChunkID <= 0 {
		return NewValidationError("id", fmt.Sprint(c.ChunkID), ErrMissingID)
	}
	if c.ProductID <= 0 {
		return NewValidationError("productId", fmt.Sprint(c.ProductID), ErrMissingID)
	}
	if c.Text == "" {
		return NewValidationError("text", "", ErrEmptyText)
	}
	return nil
}

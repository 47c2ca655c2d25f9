package semantic

import "errors"

// Typed store failures. Callers branch on these with errors.Is; every
// failure path out of the store wraps exactly one of them or passes the
// transport error through untyped.
var (
	// ErrCollectionNotFound is returned by operations against a collection
	// that does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned by a redundant CreateCollection.
	// Callers are expected to consult ListCollections first.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrDimensionMismatch is a data integrity violation: a record's vector
	// length differs from the collection's dimensionality. Upsert rejects
	// the whole batch before writing anything.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrStoreUnavailable is a transient transport failure. The store does
	// not retry; callers may.
	ErrStoreUnavailable = errors.New("vector store unavailable")
)

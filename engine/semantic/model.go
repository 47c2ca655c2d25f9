package semantic

import "github.com/google/uuid"

// Payload field names as stored in Qdrant.
const (
	payloadID       = "id"
	payloadText     = "text"
	payloadSource   = "external_source_name"
	payloadMetadata = "additional_metadata"
)

// Record is one indexed unit. ID is the stable natural key of the source
// entity; the vector must match the owning collection's dimensionality.
// ExternalSourceName carries the equality-filter tag (see domain package
// conventions) because the payload schema has no first-class filter fields.
type Record struct {
	ID                 string
	Vector             []float32
	Text               string
	ExternalSourceName string
	AdditionalMetadata string
}

// Filter is an optional equality constraint on a record's source tag.
// It is serialized to the "{key}:{value}" wire form only at the store
// boundary; nothing above this package deals in encoded strings.
type Filter struct {
	Key   string
	Value string
}

// SearchHit is a scored record, higher score meaning more similar.
type SearchHit struct {
	Score  float32
	Record Record
}

// pointID derives the deterministic Qdrant point UUID for a natural key,
// so re-upserting the same record overwrites rather than duplicates.
func pointID(naturalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(naturalID)).String()
}

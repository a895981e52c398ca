package vectorstore

// ConflictPolicy decides what Add does when a record's external id already
// exists in the collection.
type ConflictPolicy string

const (
	// ConflictSkip leaves the existing record untouched (default).
	ConflictSkip ConflictPolicy = "skip"
	// ConflictUpdate overwrites document, vector, and metadata.
	ConflictUpdate ConflictPolicy = "update"
	// ConflictError fails the whole Add call.
	ConflictError ConflictPolicy = "error"
)

// Valid reports whether p is a known policy.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case ConflictSkip, ConflictUpdate, ConflictError:
		return true
	}
	return false
}

// Record is an embedding record owned by a collection.
type Record struct {
	// ExternalID is the caller-supplied stable identifier, unique within
	// a collection. Empty means the store assigns one.
	ExternalID string

	// Document is the raw text the vector was computed from.
	Document string

	// Vector is the embedding; its length must match the collection's
	// fixed dimensionality.
	Vector []float32

	// Metadata is an open key/value map used for filtering.
	Metadata map[string]any
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ExternalID string         `json:"external_id"`
	Document   string         `json:"document"`
	Score      float32        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Stats summarizes a collection.
type Stats struct {
	Count               int64   `json:"count"`
	UniqueEntities      int64   `json:"unique_entities"`
	AvgRecordsPerEntity float64 `json:"avg_records_per_entity"`
}

// scoreFromDistance folds pgvector cosine distance (range [0,2]) into the
// contract's [0,1] similarity score. Both backends use this so scores are
// indistinguishable across schemas.
func scoreFromDistance(distance float64) float32 {
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return float32(score)
}

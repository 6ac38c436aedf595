package vector

import "context"

// Record is one stored vector with its payload.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchResult is one query hit. Score is higher-is-better in the
// collection's metric.
type SearchResult struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// IDPolicy constrains the record ids a backend accepts.
type IDPolicy string

const (
	// IDPolicyAny accepts any non-empty id.
	IDPolicyAny IDPolicy = "any"
	// IDPolicyUUID requires parseable UUIDs, canonicalized to their
	// dashed lowercase form.
	IDPolicyUUID IDPolicy = "uuid"
)

// Store is the backend port the repository drives. Implementations
// declare their capabilities; the repository normalizes inputs against
// them before delegating.
type Store interface {
	// Name identifies the backend for error messages.
	Name() string
	// IDPolicy reports the id constraint of the backend.
	IDPolicy() IDPolicy
	// SupportsFilters reports whether Query accepts payload filters.
	SupportsFilters() bool
	// SupportedMetrics lists the metrics the backend can score with.
	SupportedMetrics() []Metric
	// CreateCollection creates a named collection. With overwrite an
	// existing collection is replaced, otherwise creation fails.
	CreateCollection(ctx context.Context, name string, dimension int, metric Metric, overwrite bool) error
	// HasCollection reports whether the collection exists.
	HasCollection(ctx context.Context, name string) (bool, error)
	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, collection string, records []Record) error
	// Query returns the topK records most similar to vector, optionally
	// restricted by equality filters on the payload.
	Query(ctx context.Context, collection string, vec []float32, topK int, filters map[string]any) ([]SearchResult, error)
	// Fetch returns the records with the given ids, skipping missing
	// ones. A nil id list fetches everything.
	Fetch(ctx context.Context, collection string, ids []string) ([]Record, error)
	// Delete removes records by id and returns how many existed.
	Delete(ctx context.Context, collection string, ids []string) (int, error)
}

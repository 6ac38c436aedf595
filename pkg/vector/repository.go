package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/relstore/relstore/pkg/core"
)

// Options configures a Repository.
type Options struct {
	// Metric is the similarity metric name; aliases and case are
	// normalized. Empty means cosine.
	Metric string
	// AutoCreate creates the collection during construction when
	// missing.
	AutoCreate bool
	// Overwrite replaces an existing collection during construction.
	Overwrite bool
	// Codec translates payloads for the backend. Nil means JSONCodec.
	Codec PayloadCodec
	// Logger receives operation-level debug output.
	Logger core.Logger
}

// DefaultOptions returns the default configuration: cosine metric,
// auto-created collection, tagged-JSON payload codec.
func DefaultOptions() Options {
	return Options{Metric: string(MetricCosine), AutoCreate: true}
}

// Repository validates and normalizes vector operations before
// delegating to a backend Store: dimensions are checked up front, ids
// follow the backend's policy, metrics are normalized against the
// backend's supported set, and payloads pass through the codec in both
// directions.
type Repository struct {
	store      Store
	collection string
	dimension  int
	metric     Metric
	codec      PayloadCodec
	logger     core.Logger
}

// NewRepository builds a repository over one collection, creating the
// collection when AutoCreate is set and it does not exist.
func NewRepository(ctx context.Context, store Store, collection string, dimension int, opts Options) (*Repository, error) {
	const op = "new_repository"
	if store == nil {
		return nil, wrapError(op, fmt.Errorf("nil store"))
	}
	if collection == "" {
		return nil, wrapError(op, fmt.Errorf("empty collection name"))
	}
	if dimension <= 0 {
		return nil, wrapError(op, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension))
	}
	metricName := opts.Metric
	if metricName == "" {
		metricName = string(MetricCosine)
	}
	metric, err := NormalizeMetric(metricName, store.SupportedMetrics())
	if err != nil {
		return nil, wrapError(op, err)
	}
	codec := opts.Codec
	if codec == nil {
		codec = JSONCodec{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = core.NopLogger()
	}

	r := &Repository{
		store:      store,
		collection: collection,
		dimension:  dimension,
		metric:     metric,
		codec:      codec,
		logger:     logger.With("collection", collection),
	}

	if opts.AutoCreate {
		has, err := store.HasCollection(ctx, collection)
		if err != nil {
			return nil, wrapError(op, err)
		}
		if !has || opts.Overwrite {
			if err := store.CreateCollection(ctx, collection, dimension, metric, opts.Overwrite); err != nil {
				return nil, wrapError(op, err)
			}
			r.logger.Debug("collection created", "dimension", dimension, "metric", metric)
		}
	}
	return r, nil
}

// Collection returns the collection name.
func (r *Repository) Collection() string { return r.collection }

// Dimension returns the expected vector length.
func (r *Repository) Dimension() int { return r.dimension }

// Metric returns the normalized metric.
func (r *Repository) Metric() Metric { return r.metric }

// checkVector validates a vector's length before any backend call.
func (r *Repository) checkVector(vec []float32) error {
	if len(vec) != r.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), r.dimension)
	}
	return nil
}

// normalizeID enforces the backend's id policy. UUID backends get
// canonical dashed-lowercase ids regardless of the input spelling.
func (r *Repository) normalizeID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrInvalidID)
	}
	if r.store.IDPolicy() != IDPolicyUUID {
		return id, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a UUID, required by %s", ErrInvalidID, id, r.store.Name())
	}
	return parsed.String(), nil
}

// Upsert validates, normalizes and stores the records. Caller slices are
// not mutated.
func (r *Repository) Upsert(ctx context.Context, records []Record) error {
	const op = "upsert"
	prepared := make([]Record, len(records))
	for i, rec := range records {
		id, err := r.normalizeID(rec.ID)
		if err != nil {
			return wrapError(op, err)
		}
		if err := r.checkVector(rec.Vector); err != nil {
			return wrapError(op, fmt.Errorf("record %q: %w", rec.ID, err))
		}
		payload, err := r.codec.Serialize(rec.Payload)
		if err != nil {
			return wrapError(op, err)
		}
		prepared[i] = Record{ID: id, Vector: rec.Vector, Payload: payload}
	}
	if err := r.store.Upsert(ctx, r.collection, prepared); err != nil {
		return wrapError(op, err)
	}
	r.logger.Debug("upserted", "count", len(prepared))
	return nil
}

// Query returns the topK most similar records. Filters require backend
// support and pass through the codec; topK of zero or less yields an
// empty result without touching the backend.
func (r *Repository) Query(ctx context.Context, vec []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	const op = "query"
	if len(filters) > 0 && !r.store.SupportsFilters() {
		return nil, wrapError(op, fmt.Errorf("%w: %s", ErrFiltersNotSupported, r.store.Name()))
	}
	if err := r.checkVector(vec); err != nil {
		return nil, wrapError(op, err)
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	encodedFilters, err := r.codec.Serialize(filters)
	if err != nil {
		return nil, wrapError(op, err)
	}
	results, err := r.store.Query(ctx, r.collection, vec, topK, encodedFilters)
	if err != nil {
		return nil, wrapError(op, err)
	}
	for i := range results {
		payload, err := r.codec.Deserialize(results[i].Payload)
		if err != nil {
			return nil, wrapError(op, err)
		}
		results[i].Payload = payload
	}
	return results, nil
}

// Fetch returns the records with the given ids, skipping missing ones.
// A nil id list fetches the whole collection.
func (r *Repository) Fetch(ctx context.Context, ids []string) ([]Record, error) {
	const op = "fetch"
	normalized, err := r.normalizeIDs(ids)
	if err != nil {
		return nil, wrapError(op, err)
	}
	records, err := r.store.Fetch(ctx, r.collection, normalized)
	if err != nil {
		return nil, wrapError(op, err)
	}
	for i := range records {
		payload, err := r.codec.Deserialize(records[i].Payload)
		if err != nil {
			return nil, wrapError(op, err)
		}
		records[i].Payload = payload
	}
	return records, nil
}

// Delete removes records by id and returns how many existed.
func (r *Repository) Delete(ctx context.Context, ids []string) (int, error) {
	const op = "delete"
	normalized, err := r.normalizeIDs(ids)
	if err != nil {
		return 0, wrapError(op, err)
	}
	count, err := r.store.Delete(ctx, r.collection, normalized)
	if err != nil {
		return 0, wrapError(op, err)
	}
	return count, nil
}

func (r *Repository) normalizeIDs(ids []string) ([]string, error) {
	if ids == nil {
		return nil, nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		normalized, err := r.normalizeID(id)
		if err != nil {
			return nil, err
		}
		out[i] = normalized
	}
	return out, nil
}

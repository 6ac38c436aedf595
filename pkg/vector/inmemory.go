package vector

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// collectionState holds one in-memory collection. Insertion order is
// tracked so equal-score results come back in a stable order.
type collectionState struct {
	dimension int
	metric    Metric
	records   map[string]Record
	order     []string
}

// InMemoryStore is the exact brute-force reference backend: every query
// scores every record. It accepts free-form ids, supports equality
// payload filters and all three metrics.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collectionState
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: map[string]*collectionState{}}
}

// Name identifies the backend.
func (s *InMemoryStore) Name() string { return "inmemory" }

// IDPolicy reports that any non-empty id is accepted.
func (s *InMemoryStore) IDPolicy() IDPolicy { return IDPolicyAny }

// SupportsFilters reports equality filter support.
func (s *InMemoryStore) SupportsFilters() bool { return true }

// SupportedMetrics lists all three metrics.
func (s *InMemoryStore) SupportedMetrics() []Metric {
	return []Metric{MetricCosine, MetricDot, MetricL2}
}

// CreateCollection creates a named collection. With overwrite an
// existing collection is dropped first.
func (s *InMemoryStore) CreateCollection(ctx context.Context, name string, dimension int, metric Metric, overwrite bool) error {
	const op = "create_collection"
	if dimension <= 0 {
		return wrapError(op, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension))
	}
	normalized, err := NormalizeMetric(string(metric), s.SupportedMetrics())
	if err != nil {
		return wrapError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[name]; exists && !overwrite {
		return wrapError(op, fmt.Errorf("%w: %q", ErrCollectionExists, name))
	}
	s.collections[name] = &collectionState{
		dimension: dimension,
		metric:    normalized,
		records:   map[string]Record{},
	}
	return nil
}

// HasCollection reports whether the collection exists.
func (s *InMemoryStore) HasCollection(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *InMemoryStore) collection(op, name string) (*collectionState, error) {
	col, ok := s.collections[name]
	if !ok {
		return nil, wrapError(op, fmt.Errorf("%w: %q", ErrCollectionNotFound, name))
	}
	return col, nil
}

// Upsert inserts or replaces records by id, validating dimensions.
func (s *InMemoryStore) Upsert(ctx context.Context, collection string, records []Record) error {
	const op = "upsert"
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.collection(op, collection)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if len(rec.Vector) != col.dimension {
			return wrapError(op, fmt.Errorf("%w: record %q has %d, collection wants %d",
				ErrDimensionMismatch, rec.ID, len(rec.Vector), col.dimension))
		}
	}
	for _, rec := range records {
		stored := Record{
			ID:     rec.ID,
			Vector: append([]float32(nil), rec.Vector...),
		}
		if rec.Payload != nil {
			stored.Payload = make(map[string]any, len(rec.Payload))
			for k, v := range rec.Payload {
				stored.Payload[k] = v
			}
		}
		if _, exists := col.records[rec.ID]; !exists {
			col.order = append(col.order, rec.ID)
		}
		col.records[rec.ID] = stored
	}
	return nil
}

// Query scores every record, applies equality filters, and returns the
// topK best, score-descending. Ties keep insertion order.
func (s *InMemoryStore) Query(ctx context.Context, collection string, vec []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	const op = "query"
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, err := s.collection(op, collection)
	if err != nil {
		return nil, err
	}
	if len(vec) != col.dimension {
		return nil, wrapError(op, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), col.dimension))
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	score := col.metric.Score()
	results := make([]SearchResult, 0, len(col.order))
	for _, id := range col.order {
		rec := col.records[id]
		if !matchesFilters(rec.Payload, filters) {
			continue
		}
		results = append(results, SearchResult{
			ID:      rec.ID,
			Score:   score(vec, rec.Vector),
			Payload: rec.Payload,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Fetch returns the records with the given ids in insertion order,
// skipping missing ones. A nil id list fetches everything.
func (s *InMemoryStore) Fetch(ctx context.Context, collection string, ids []string) ([]Record, error) {
	const op = "fetch"
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, err := s.collection(op, collection)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		out := make([]Record, 0, len(col.order))
		for _, id := range col.order {
			out = append(out, col.records[id])
		}
		return out, nil
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := col.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Delete removes records by id and returns how many existed.
func (s *InMemoryStore) Delete(ctx context.Context, collection string, ids []string) (int, error) {
	const op = "delete"
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.collection(op, collection)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if _, ok := col.records[id]; !ok {
			continue
		}
		delete(col.records, id)
		removed++
	}
	if removed > 0 {
		kept := col.order[:0]
		for _, id := range col.order {
			if _, ok := col.records[id]; ok {
				kept = append(kept, id)
			}
		}
		col.order = kept
	}
	return removed, nil
}

// matchesFilters applies equality filters against a payload.
func matchesFilters(payload, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := payload[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

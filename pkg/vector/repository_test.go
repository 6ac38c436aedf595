package vector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore records the calls the repository makes so tests can assert
// what reached the backend, and in which normalized form.
type stubStore struct {
	name     string
	idPolicy IDPolicy
	filters  bool
	metrics  []Metric

	hasCollection bool

	createCalls int
	hasCalls    int
	upserted    [][]Record
	queries     int
	queryVec    []float32
	queryTopK   int
	queryFilter map[string]any
	fetchedIDs  []string
	deletedIDs  []string
}

func newStubStore() *stubStore {
	return &stubStore{
		name:     "stub",
		idPolicy: IDPolicyAny,
		filters:  true,
		metrics:  []Metric{MetricCosine, MetricDot, MetricL2},
	}
}

func (s *stubStore) Name() string               { return s.name }
func (s *stubStore) IDPolicy() IDPolicy         { return s.idPolicy }
func (s *stubStore) SupportsFilters() bool      { return s.filters }
func (s *stubStore) SupportedMetrics() []Metric { return s.metrics }

func (s *stubStore) CreateCollection(ctx context.Context, name string, dimension int, metric Metric, overwrite bool) error {
	s.createCalls++
	s.hasCollection = true
	return nil
}

func (s *stubStore) HasCollection(ctx context.Context, name string) (bool, error) {
	s.hasCalls++
	return s.hasCollection, nil
}

func (s *stubStore) Upsert(ctx context.Context, collection string, records []Record) error {
	s.upserted = append(s.upserted, records)
	return nil
}

func (s *stubStore) Query(ctx context.Context, collection string, vec []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	s.queries++
	s.queryVec = vec
	s.queryTopK = topK
	s.queryFilter = filters
	return []SearchResult{}, nil
}

func (s *stubStore) Fetch(ctx context.Context, collection string, ids []string) ([]Record, error) {
	s.fetchedIDs = ids
	return nil, nil
}

func (s *stubStore) Delete(ctx context.Context, collection string, ids []string) (int, error) {
	s.deletedIDs = ids
	return len(ids), nil
}

func TestNewRepositoryValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewRepository(ctx, nil, "docs", 3, DefaultOptions())
	require.Error(t, err)

	_, err = NewRepository(ctx, newStubStore(), "", 3, DefaultOptions())
	require.Error(t, err)

	_, err = NewRepository(ctx, newStubStore(), "docs", 0, DefaultOptions())
	require.ErrorIs(t, err, ErrInvalidDimension)

	_, err = NewRepository(ctx, newStubStore(), "docs", 3, Options{Metric: "hamming"})
	require.ErrorIs(t, err, ErrUnsupportedMetric)

	restricted := newStubStore()
	restricted.metrics = []Metric{MetricCosine}
	_, err = NewRepository(ctx, restricted, "docs", 3, Options{Metric: "l2"})
	require.ErrorIs(t, err, ErrUnsupportedMetric)
}

func TestNewRepositoryAutoCreate(t *testing.T) {
	ctx := context.Background()

	store := newStubStore()
	repo, err := NewRepository(ctx, store, "docs", 3, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, store.hasCalls)
	assert.Equal(t, 1, store.createCalls, "missing collection gets created")
	assert.Equal(t, "docs", repo.Collection())
	assert.Equal(t, 3, repo.Dimension())
	assert.Equal(t, MetricCosine, repo.Metric())

	// Existing collection is left alone without Overwrite.
	store = newStubStore()
	store.hasCollection = true
	_, err = NewRepository(ctx, store, "docs", 3, DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, store.createCalls)

	// Overwrite recreates even when present.
	store = newStubStore()
	store.hasCollection = true
	opts := DefaultOptions()
	opts.Overwrite = true
	_, err = NewRepository(ctx, store, "docs", 3, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, store.createCalls)

	// AutoCreate off never touches the backend.
	store = newStubStore()
	_, err = NewRepository(ctx, store, "docs", 3, Options{Metric: "ip"})
	require.NoError(t, err)
	assert.Zero(t, store.hasCalls)
	assert.Zero(t, store.createCalls)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	repo, err := NewRepository(ctx, store, "docs", 3, DefaultOptions())
	require.NoError(t, err)

	err = repo.Upsert(ctx, []Record{{ID: "a", Vector: []float32{1, 2}}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), `record "a"`)
	assert.Empty(t, store.upserted, "nothing reaches the backend")
}

func TestUpsertDoesNotMutateCaller(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.idPolicy = IDPolicyUUID
	repo, err := NewRepository(ctx, store, "docs", 2, DefaultOptions())
	require.NoError(t, err)

	when := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	records := []Record{{
		ID:      "9F4A1C1E-3F7F-4D5A-9C1B-2A6D8E0F1234",
		Vector:  []float32{1, 0},
		Payload: map[string]any{"when": when},
	}}
	require.NoError(t, repo.Upsert(ctx, records))

	// Caller sees the original spelling and payload.
	assert.Equal(t, "9F4A1C1E-3F7F-4D5A-9C1B-2A6D8E0F1234", records[0].ID)
	assert.Equal(t, when, records[0].Payload["when"])

	// Backend sees the canonical id and codec-encoded payload.
	require.Len(t, store.upserted, 1)
	stored := store.upserted[0][0]
	assert.Equal(t, "9f4a1c1e-3f7f-4d5a-9c1b-2a6d8e0f1234", stored.ID)
	_, isString := stored.Payload["when"].(string)
	assert.True(t, isString, "temporal payloads arrive encoded")
}

func TestUpsertRejectsBadIDs(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.idPolicy = IDPolicyUUID
	repo, err := NewRepository(ctx, store, "docs", 2, DefaultOptions())
	require.NoError(t, err)

	err = repo.Upsert(ctx, []Record{{ID: "not-a-uuid", Vector: []float32{1, 0}}})
	require.ErrorIs(t, err, ErrInvalidID)
	assert.Contains(t, err.Error(), store.Name())

	err = repo.Upsert(ctx, []Record{{ID: "", Vector: []float32{1, 0}}})
	require.ErrorIs(t, err, ErrInvalidID)
	assert.Empty(t, store.upserted)
}

func TestQueryFilterSupportCheckedFirst(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.filters = false
	repo, err := NewRepository(ctx, store, "docs", 2, DefaultOptions())
	require.NoError(t, err)

	// Even a bad vector reports the filter problem first.
	_, err = repo.Query(ctx, []float32{1}, 5, map[string]any{"kind": "doc"})
	require.ErrorIs(t, err, ErrFiltersNotSupported)
	assert.Zero(t, store.queries)
}

func TestQueryDimensionAndTopK(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	repo, err := NewRepository(ctx, store, "docs", 2, DefaultOptions())
	require.NoError(t, err)

	_, err = repo.Query(ctx, []float32{1, 2, 3}, 5, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Zero(t, store.queries)

	results, err := repo.Query(ctx, []float32{1, 2}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []SearchResult{}, results)
	assert.Zero(t, store.queries, "topK <= 0 short-circuits")

	_, err = repo.Query(ctx, []float32{1, 2}, 3, map[string]any{"kind": "doc"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.queries)
	assert.Equal(t, 3, store.queryTopK)
	assert.Equal(t, map[string]any{"kind": "doc"}, store.queryFilter)
}

func TestFetchAndDeleteNormalizeIDs(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.idPolicy = IDPolicyUUID
	repo, err := NewRepository(ctx, store, "docs", 2, DefaultOptions())
	require.NoError(t, err)

	upper := "9F4A1C1E-3F7F-4D5A-9C1B-2A6D8E0F1234"
	lower := "9f4a1c1e-3f7f-4d5a-9c1b-2a6d8e0f1234"

	_, err = repo.Fetch(ctx, []string{upper})
	require.NoError(t, err)
	assert.Equal(t, []string{lower}, store.fetchedIDs)

	// Nil means the whole collection, passed through untouched.
	_, err = repo.Fetch(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, store.fetchedIDs)

	count, err := repo.Delete(ctx, []string{upper})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{lower}, store.deletedIDs)

	_, err = repo.Delete(ctx, []string{"nope"})
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestRepositoryOverInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	repo, err := NewRepository(ctx, store, "docs", 3, DefaultOptions())
	require.NoError(t, err)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, []Record{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: map[string]any{"kind": "doc", "created": created}},
		{ID: "b", Vector: []float32{0, 1, 0}, Payload: map[string]any{"kind": "img"}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0}, Payload: map[string]any{"kind": "doc"}},
	}))

	results, err := repo.Query(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)

	// The codec survives the round trip: filters are encoded the same way
	// payloads were, and results decode back to rich values.
	filtered, err := repo.Query(ctx, []float32{1, 0, 0}, 10, map[string]any{"kind": "doc"})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	got, ok := filtered[0].Payload["created"].(time.Time)
	require.True(t, ok)
	assert.True(t, created.Equal(got))

	fetched, err := repo.Fetch(ctx, []string{"b", "missing"})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, "b", fetched[0].ID)

	count, err := repo.Delete(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	remaining, err := repo.Fetch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "c", remaining[0].ID)
}

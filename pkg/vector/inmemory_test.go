package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollection(t *testing.T, metric Metric) *InMemoryStore {
	t.Helper()
	store := NewInMemoryStore()
	require.NoError(t, store.CreateCollection(context.Background(), "docs", 2, metric, false))
	return store
}

func TestCreateCollection(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	err := store.CreateCollection(ctx, "docs", 0, MetricCosine, false)
	require.ErrorIs(t, err, ErrInvalidDimension)

	err = store.CreateCollection(ctx, "docs", 2, "hamming", false)
	require.ErrorIs(t, err, ErrUnsupportedMetric)

	require.NoError(t, store.CreateCollection(ctx, "docs", 2, MetricCosine, false))
	has, err := store.HasCollection(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, has)

	err = store.CreateCollection(ctx, "docs", 2, MetricCosine, false)
	require.ErrorIs(t, err, ErrCollectionExists)

	// Overwrite drops the old contents.
	require.NoError(t, store.Upsert(ctx, "docs", []Record{{ID: "a", Vector: []float32{1, 0}}}))
	require.NoError(t, store.CreateCollection(ctx, "docs", 2, MetricDot, true))
	records, err := store.Fetch(ctx, "docs", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUnknownCollection(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	err := store.Upsert(ctx, "nope", nil)
	require.ErrorIs(t, err, ErrCollectionNotFound)

	_, err = store.Query(ctx, "nope", []float32{1, 0}, 1, nil)
	require.ErrorIs(t, err, ErrCollectionNotFound)

	_, err = store.Fetch(ctx, "nope", nil)
	require.ErrorIs(t, err, ErrCollectionNotFound)

	_, err = store.Delete(ctx, "nope", []string{"a"})
	require.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestUpsertValidatesBeforeStoring(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricCosine)

	err := store.Upsert(ctx, "docs", []Record{
		{ID: "good", Vector: []float32{1, 0}},
		{ID: "bad", Vector: []float32{1, 0, 0}},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), `record "bad"`)

	// The valid record in the same batch was not stored either.
	records, err := store.Fetch(ctx, "docs", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUpsertReplacesKeepingOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricCosine)

	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	}))
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "a", Vector: []float32{0.5, 0.5}, Payload: map[string]any{"v": 2}},
	}))

	records, err := store.Fetch(ctx, "docs", nil)
	require.NoError(t, err)
	require.Len(t, records, 2, "replacing an id must not duplicate it")
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, []float32{0.5, 0.5}, records[0].Vector)
	assert.Equal(t, map[string]any{"v": 2}, records[0].Payload)
	assert.Equal(t, "b", records[1].ID)
}

func TestUpsertCopiesInputs(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricCosine)

	vec := []float32{1, 0}
	payload := map[string]any{"k": "v"}
	require.NoError(t, store.Upsert(ctx, "docs", []Record{{ID: "a", Vector: vec, Payload: payload}}))

	vec[0] = 99
	payload["k"] = "changed"

	records, err := store.Fetch(ctx, "docs", nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, records[0].Vector)
	assert.Equal(t, map[string]any{"k": "v"}, records[0].Payload)
}

func TestQueryOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricCosine)
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "far", Vector: []float32{0, 1}},
		{ID: "close", Vector: []float32{0.9, 0.1}},
		{ID: "exact", Vector: []float32{1, 0}},
	}))

	results, err := store.Query(ctx, "docs", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "close", results[1].ID)
	assert.Equal(t, "far", results[2].ID)

	// topK truncates after sorting.
	results, err = store.Query(ctx, "docs", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].ID)

	results, err = store.Query(ctx, "docs", []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = store.Query(ctx, "docs", []float32{1, 0, 0}, 1, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricDot)
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "first", Vector: []float32{1, 1}},
		{ID: "second", Vector: []float32{1, 1}},
		{ID: "third", Vector: []float32{2, 2}},
	}))

	results, err := store.Query(ctx, "docs", []float32{1, 1}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "third", results[0].ID)
	assert.Equal(t, "first", results[1].ID)
	assert.Equal(t, "second", results[2].ID)
}

func TestQueryL2Metric(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricL2)
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "near", Vector: []float32{1, 1}},
		{ID: "far", Vector: []float32{10, 10}},
	}))

	results, err := store.Query(ctx, "docs", []float32{0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].ID, "smaller distance scores higher")
	assert.Less(t, results[1].Score, results[0].Score)
}

func TestQueryEqualityFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricCosine)
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"kind": "doc", "lang": "en"}},
		{ID: "b", Vector: []float32{0.9, 0.1}, Payload: map[string]any{"kind": "doc", "lang": "de"}},
		{ID: "c", Vector: []float32{0.8, 0.2}, Payload: map[string]any{"kind": "img"}},
	}))

	results, err := store.Query(ctx, "docs", []float32{1, 0}, 10, map[string]any{"kind": "doc"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)

	// All filters must match.
	results, err = store.Query(ctx, "docs", []float32{1, 0}, 10, map[string]any{"kind": "doc", "lang": "de"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	// A filter on a missing key matches nothing.
	results, err = store.Query(ctx, "docs", []float32{1, 0}, 10, map[string]any{"missing": 1})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFetchSubset(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricCosine)
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	}))

	records, err := store.Fetch(ctx, "docs", []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, records, 2, "missing ids are skipped")
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "a", records[1].ID)
}

func TestDeleteCompactsOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, MetricCosine)
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
		{ID: "c", Vector: []float32{1, 1}},
	}))

	count, err := store.Delete(ctx, "docs", []string{"b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only existing ids count")

	records, err := store.Fetch(ctx, "docs", nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "c", records[1].ID)
}

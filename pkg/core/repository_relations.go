package core

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// create inserts obj together with its related records inside one
// transaction. belongs_to targets go first so their generated keys can be
// copied onto obj, then obj itself, then has_many children stamped with
// obj's key.
func (r *repo) create(ctx context.Context, obj any, relations map[string]any) error {
	op := r.meta.Table + ".create"
	if err := r.checkRecord(obj); err != nil {
		return wrapError(op, err)
	}
	if len(relations) == 0 {
		return r.insert(ctx, obj)
	}
	names := make([]string, 0, len(relations))
	for name, value := range relations {
		names = append(names, name)
		// The provided value carries the target type; registering it lets
		// fk inference resolve relations whose other side has not been
		// seen yet.
		if t, ok := relationTargetType(value); ok {
			if err := r.registry.Register(t); err != nil {
				return wrapError(op, err)
			}
		}
	}
	sort.Strings(names)
	if err := r.validateIncludes(op, names); err != nil {
		return err
	}
	if err := r.prepare(ctx, op); err != nil {
		return err
	}
	// Prepare every target up front so no schema DDL fires inside the
	// transaction.
	for _, name := range names {
		target, err := r.related(r.meta.Relations[name].Target)
		if err != nil {
			return wrapError(op, err)
		}
		if err := target.prepare(ctx, op); err != nil {
			return err
		}
	}

	return runAtomic(ctx, r.db, func(ctx context.Context) error {
		for _, name := range names {
			spec := r.meta.Relations[name]
			if spec.Kind != RelationBelongsTo || relations[name] == nil {
				continue
			}
			if err := r.createBelongsTo(ctx, op, obj, spec, relations[name]); err != nil {
				return err
			}
		}
		if err := r.insert(ctx, obj); err != nil {
			return err
		}
		for _, name := range names {
			spec := r.meta.Relations[name]
			if spec.Kind != RelationHasMany || relations[name] == nil {
				continue
			}
			if err := r.createHasMany(ctx, op, obj, spec, relations[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

// relationTargetType extracts the struct type a relation value carries,
// unwrapping pointers and slices.
func relationTargetType(value any) (reflect.Type, bool) {
	t := reflect.TypeOf(value)
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
	}
	if t.Kind() != reflect.Struct {
		return nil, false
	}
	return t, true
}

func (r *repo) createBelongsTo(ctx context.Context, op string, obj any, spec RelationSpec, value any) error {
	target, err := r.related(spec.Target)
	if err != nil {
		return wrapError(op, err)
	}
	if err := target.checkRecord(value); err != nil {
		return wrapError(op, fmt.Errorf("relation %q: %w", spec.Name, err))
	}
	if err := target.insert(ctx, value); err != nil {
		return err
	}
	remote, err := target.meta.columnValue(value, spec.RemoteKey)
	if err != nil {
		return wrapError(op, err)
	}
	if err := r.meta.setColumnValue(obj, spec.LocalKey, remote); err != nil {
		return wrapError(op, err)
	}
	return nil
}

func (r *repo) createHasMany(ctx context.Context, op string, obj any, spec RelationSpec, value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return wrapError(op, fmt.Errorf("%w: relation %q expects a slice of *%s, got %T",
			ErrUsage, spec.Name, spec.Target.Name(), value))
	}
	target, err := r.related(spec.Target)
	if err != nil {
		return wrapError(op, err)
	}
	local, err := r.meta.columnValue(obj, spec.LocalKey)
	if err != nil {
		return wrapError(op, err)
	}
	children := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		child := rv.Index(i).Interface()
		if err := target.checkRecord(child); err != nil {
			return wrapError(op, fmt.Errorf("relation %q: %w", spec.Name, err))
		}
		if err := target.meta.setColumnValue(child, spec.RemoteKey, local); err != nil {
			return wrapError(op, err)
		}
		children[i] = child
	}
	return target.insertMany(ctx, children)
}

func (r *repo) getRelated(ctx context.Context, pk any, include []string) (any, map[string]any, error) {
	op := r.meta.Table + ".get_related"
	include = dedupeStrings(include)
	if err := r.validateIncludes(op, include); err != nil {
		return nil, nil, err
	}
	rec, err := r.get(ctx, pk)
	if err != nil || rec == nil {
		return nil, nil, err
	}
	loaded, err := r.loadRelations(ctx, op, []any{rec}, include)
	if err != nil {
		return nil, nil, err
	}
	return rec, loaded[0], nil
}

func (r *repo) listRelated(ctx context.Context, q Query, include []string) ([]any, []map[string]any, error) {
	op := r.meta.Table + ".list_related"
	include = dedupeStrings(include)
	if err := r.validateIncludes(op, include); err != nil {
		return nil, nil, err
	}
	records, err := r.list(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	loaded, err := r.loadRelations(ctx, op, records, include)
	if err != nil {
		return nil, nil, err
	}
	return records, loaded, nil
}

// validateIncludes rejects unknown relation names up front, naming the
// available ones.
func (r *repo) validateIncludes(op string, include []string) error {
	for _, name := range include {
		if _, ok := r.meta.Relations[name]; !ok {
			available := make([]string, 0, len(r.meta.Relations))
			for n := range r.meta.Relations {
				available = append(available, n)
			}
			sort.Strings(available)
			return usageError(op, "unknown relation %q on %s (available: %s)",
				name, r.meta.Type.Name(), strings.Join(available, ", "))
		}
	}
	return nil
}

// loadRelations batch-loads each named relation with a single IN query.
// Independent relations load concurrently.
func (r *repo) loadRelations(ctx context.Context, op string, records []any, include []string) ([]map[string]any, error) {
	results := make([]map[string]any, len(records))
	for i := range results {
		results[i] = make(map[string]any, len(include))
	}
	if len(records) == 0 || len(include) == 0 {
		return results, nil
	}

	loaded := make([][]any, len(include))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range include {
		spec := r.meta.Relations[name]
		g.Go(func() error {
			values, err := r.loadOneRelation(gctx, op, records, spec)
			if err != nil {
				return err
			}
			loaded[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, name := range include {
		for j := range records {
			results[j][name] = loaded[i][j]
		}
	}
	return results, nil
}

// loadOneRelation resolves one relation for every record. The returned
// slice is index-aligned with records: a belongs_to entry is the related
// record pointer or nil, a has_many entry is a []any of pointers.
func (r *repo) loadOneRelation(ctx context.Context, op string, records []any, spec RelationSpec) ([]any, error) {
	target, err := r.related(spec.Target)
	if err != nil {
		return nil, wrapError(op, err)
	}

	keys := make([]any, 0, len(records))
	seen := map[any]bool{}
	recordKeys := make([]any, len(records))
	for i, rec := range records {
		zero, err := r.meta.columnIsZero(rec, spec.LocalKey)
		if err != nil {
			return nil, wrapError(op, err)
		}
		if zero {
			recordKeys[i] = nil
			continue
		}
		v, err := r.meta.columnValue(rec, spec.LocalKey)
		if err != nil {
			return nil, wrapError(op, err)
		}
		key := normalizeKey(v)
		recordKeys[i] = key
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	values := make([]any, len(records))
	if spec.Kind == RelationHasMany {
		for i := range values {
			values[i] = []any{}
		}
	}
	if len(keys) == 0 {
		return values, nil
	}

	related, err := target.list(ctx, Query{
		Where:   []Expr{In(spec.RemoteKey, keys...)},
		OrderBy: []OrderBy{Asc(spec.RemoteKey), Asc(target.meta.PK)},
	})
	if err != nil {
		return nil, err
	}

	if spec.Kind == RelationHasMany {
		grouped := map[any][]any{}
		for _, rel := range related {
			rk, err := target.meta.columnValue(rel, spec.RemoteKey)
			if err != nil {
				return nil, wrapError(op, err)
			}
			key := normalizeKey(rk)
			grouped[key] = append(grouped[key], rel)
		}
		for i, key := range recordKeys {
			if key == nil {
				continue
			}
			if group, ok := grouped[key]; ok {
				values[i] = group
			}
		}
		return values, nil
	}

	byKey := map[any]any{}
	for _, rel := range related {
		rk, err := target.meta.columnValue(rel, spec.RemoteKey)
		if err != nil {
			return nil, wrapError(op, err)
		}
		key := normalizeKey(rk)
		if _, ok := byKey[key]; !ok {
			byKey[key] = rel
		}
	}
	for i, key := range recordKeys {
		if key == nil {
			continue
		}
		values[i] = byKey[key] // stays nil when the target row is gone
	}
	return values, nil
}

// normalizeKey folds integer widths together so grouping keys compare
// equal across differently declared key columns.
func normalizeKey(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.String:
		return rv.String()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalizeKey(rv.Elem().Interface())
	}
	return v
}

func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

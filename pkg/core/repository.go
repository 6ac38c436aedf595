package core

import (
	"context"
	"fmt"
	"reflect"
)

// Query bundles the optional clauses of a list operation.
type Query struct {
	Where   []Expr
	OrderBy []OrderBy
	Limit   *int
	Offset  *int
}

// RepositoryOptions configures repository behavior.
type RepositoryOptions struct {
	// AutoSchema creates or syncs the table on first use.
	AutoSchema bool
	// SchemaConflict selects how EnsureSchema treats an incompatible
	// existing table.
	SchemaConflict SchemaConflict
	// RequireRegistration makes operations fail on unregistered models
	// instead of registering lazily.
	RequireRegistration bool
	// Registry shares metadata and the registration set across
	// repositories. A new one is created when nil.
	Registry *Registry
	// Logger receives operation-level debug logging.
	Logger Logger
}

/// DefaultRepositoryOptions returns the default configuration: lazy
// registration with automatic schema creation.
func DefaultRepositoryOptions() RepositoryOptions {
	return RepositoryOptions{
		AutoSchema:     true,
		SchemaConflict: SchemaConflictRaise,
	}
}

func (o RepositoryOptions) withDefaults() RepositoryOptions {
	if o.Registry == nil {
		o.Registry = NewRegistry()
	}
	if o.Logger == nil {
		o.Logger = NopLogger()
	}
	if o.SchemaConflict == "" {
		o.SchemaConflict = SchemaConflictRaise
	}
	return o
}

// repo is the untyped engine behind Repository, Hub and relation loading.
// All operations take pointers to the model struct as any.
type repo struct {
	db       Database
	dialect  Dialect
	meta     *ModelMetadata
	opts     RepositoryOptions
	registry *Registry
	logger   Logger
}

func newRepo(db Database, meta *ModelMetadata, opts RepositoryOptions) *repo {
	return &repo{
		db:       db,
		dialect:  db.Dialect(),
		meta:     meta,
		opts:     opts,
		registry: opts.Registry,
		logger:   opts.Logger.With("table", meta.Table),
	}
}

// prepare runs the lazy-registration protocol before an operation:
// registered models pass through, unregistered ones either fail (when
// registration is required) or register on the spot.
func (r *repo) prepare(ctx context.Context, op string) error {
	if r.registry.isActive(r.meta.Type) {
		return nil
	}
	if r.opts.RequireRegistration {
		return wrapError(op, fmt.Errorf("%w: %s", ErrNotRegistered, r.meta.Type.Name()))
	}
	return r.register(ctx, r.opts.AutoSchema)
}

// register marks the model registered, ensuring its schema first when
// requested.
func (r *repo) register(ctx context.Context, ensureSchema bool) error {
	if ensureSchema {
		if _, err := EnsureSchema(ctx, r.db, r.meta, r.opts.SchemaConflict); err != nil {
			return err
		}
		r.logger.Debug("schema ensured")
	}
	r.registry.markActive(r.meta.Type)
	return nil
}

// related builds a sibling engine for the target type of a relation,
// sharing this engine's database, options and registry.
func (r *repo) related(target reflect.Type) (*repo, error) {
	meta, err := r.registry.MetadataFor(target)
	if err != nil {
		return nil, err
	}
	return newRepo(r.db, meta, r.opts), nil
}

// checkRecord validates that obj is a non-nil pointer to this engine's
// model struct.
func (r *repo) checkRecord(obj any) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Type() != r.meta.Type {
		return fmt.Errorf("%w: expected *%s, got %T", ErrUsage, r.meta.Type.Name(), obj)
	}
	return nil
}

// Related pairs a record with its eagerly loaded relations. A belongs_to
// entry holds a pointer to the related record (or nil), a has_many entry
// holds a []any of pointers.
type Related[T any] struct {
	Record    *T
	Relations map[string]any
}

// Repository provides typed persistence operations for one model struct.
type Repository[T any] struct {
	inner *repo
}

// NewRepository creates a repository with default options.
func NewRepository[T any](db Database) (*Repository[T], error) {
	return NewRepositoryWithOptions[T](db, DefaultRepositoryOptions())
}

// NewRepositoryWithOptions creates a repository with explicit options.
func NewRepositoryWithOptions[T any](db Database, opts RepositoryOptions) (*Repository[T], error) {
	if db == nil {
		return nil, configError("repository.new", "nil database")
	}
	opts = opts.withDefaults()
	t := reflect.TypeOf((*T)(nil)).Elem()
	meta, err := opts.Registry.MetadataFor(t)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{inner: newRepo(db, meta, opts)}, nil
}

// Metadata returns the resolved model metadata.
func (r *Repository[T]) Metadata() *ModelMetadata {
	return r.inner.meta
}

// Register registers the model explicitly, ensuring its schema when
// AutoSchema is enabled.
func (r *Repository[T]) Register(ctx context.Context) error {
	return r.inner.register(ctx, r.inner.opts.AutoSchema)
}

// EnsureSchema creates or syncs the model's table and indexes.
func (r *Repository[T]) EnsureSchema(ctx context.Context) error {
	_, err := EnsureSchema(ctx, r.inner.db, r.inner.meta, r.inner.opts.SchemaConflict)
	return err
}

// Insert persists obj and writes a generated primary key back onto it.
func (r *Repository[T]) Insert(ctx context.Context, obj *T) error {
	return r.inner.insert(ctx, obj)
}

// InsertMany persists the records one by one, in order.
func (r *Repository[T]) InsertMany(ctx context.Context, objs []*T) error {
	anys := make([]any, len(objs))
	for i, o := range objs {
		anys[i] = o
	}
	return r.inner.insertMany(ctx, anys)
}

// Update writes obj's current column values by primary key and returns
// the number of rows affected.
func (r *Repository[T]) Update(ctx context.Context, obj *T) (int64, error) {
	return r.inner.update(ctx, obj)
}

// Delete removes obj's row by primary key and returns the number of rows
// affected.
func (r *Repository[T]) Delete(ctx context.Context, obj *T) (int64, error) {
	return r.inner.delete(ctx, obj)
}

// Get loads the record with the given primary key, or nil when absent.
func (r *Repository[T]) Get(ctx context.Context, pk any) (*T, error) {
	rec, err := r.inner.get(ctx, pk)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.(*T), nil
}

// List loads the records matching q.
func (r *Repository[T]) List(ctx context.Context, q Query) ([]*T, error) {
	recs, err := r.inner.list(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(recs))
	for i, rec := range recs {
		out[i] = rec.(*T)
	}
	return out, nil
}

// Count counts the records matching the condition.
func (r *Repository[T]) Count(ctx context.Context, where ...Expr) (int64, error) {
	return r.inner.count(ctx, where)
}

// Exists reports whether any record matches the condition.
func (r *Repository[T]) Exists(ctx context.Context, where ...Expr) (bool, error) {
	return r.inner.exists(ctx, where)
}

// UpdateWhere updates columns on every record matching the condition.
// The condition is required; the primary key cannot be mass-updated.
func (r *Repository[T]) UpdateWhere(ctx context.Context, values map[string]any, where ...Expr) (int64, error) {
	return r.inner.updateWhere(ctx, values, where)
}

// DeleteWhere removes every record matching the condition. The condition
// is required.
func (r *Repository[T]) DeleteWhere(ctx context.Context, where ...Expr) (int64, error) {
	return r.inner.deleteWhere(ctx, where)
}

// GetOrCreate looks up a record by a unique column set, inserting it with
// lookup plus defaults when absent. The bool result reports whether an
// insert happened.
func (r *Repository[T]) GetOrCreate(ctx context.Context, lookup, defaults map[string]any) (*T, bool, error) {
	rec, created, err := r.inner.getOrCreate(ctx, lookup, defaults)
	if err != nil || rec == nil {
		return nil, false, err
	}
	return rec.(*T), created, nil
}

// Create inserts obj together with related records in one transaction:
// belongs_to targets first (their keys copied onto obj), then obj, then
// has_many children stamped with obj's key.
func (r *Repository[T]) Create(ctx context.Context, obj *T, relations map[string]any) error {
	return r.inner.create(ctx, obj, relations)
}

// GetRelated loads a record by primary key together with the named
// relations. Returns nil when the record is absent.
func (r *Repository[T]) GetRelated(ctx context.Context, pk any, include []string) (*Related[T], error) {
	rec, rels, err := r.inner.getRelated(ctx, pk, include)
	if err != nil || rec == nil {
		return nil, err
	}
	return &Related[T]{Record: rec.(*T), Relations: rels}, nil
}

// ListRelated loads the records matching q together with the named
// relations, batching each relation into one IN query.
func (r *Repository[T]) ListRelated(ctx context.Context, q Query, include []string) ([]Related[T], error) {
	recs, rels, err := r.inner.listRelated(ctx, q, include)
	if err != nil {
		return nil, err
	}
	out := make([]Related[T], len(recs))
	for i, rec := range recs {
		out[i] = Related[T]{Record: rec.(*T), Relations: rels[i]}
	}
	return out, nil
}

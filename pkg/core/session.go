package core

import (
	"context"
	"reflect"
	"sync"
)

// Hub is a unified multi-model surface: it caches one engine per model
// over a shared database, registry and option set, so callers can work
// with any number of models through a single object.
type Hub struct {
	db   Database
	opts RepositoryOptions

	mu    sync.Mutex
	repos map[reflect.Type]*repo
}

// NewHub creates a hub with default repository options.
func NewHub(db Database) *Hub {
	return NewHubWithOptions(db, DefaultRepositoryOptions())
}

// NewHubWithOptions creates a hub with explicit repository options.
func NewHubWithOptions(db Database, opts RepositoryOptions) *Hub {
	return &Hub{
		db:    db,
		opts:  opts.withDefaults(),
		repos: map[reflect.Type]*repo{},
	}
}

// Registry returns the hub's shared registry.
func (h *Hub) Registry() *Registry {
	return h.opts.Registry
}

// Register resolves and registers the given models, ensuring their
// schemas when AutoSchema is enabled.
func (h *Hub) Register(ctx context.Context, models ...any) error {
	if err := h.opts.Registry.Register(models...); err != nil {
		return err
	}
	for _, model := range models {
		r, err := h.repoFor(model)
		if err != nil {
			return err
		}
		if err := r.register(ctx, h.opts.AutoSchema); err != nil {
			return err
		}
	}
	return nil
}

// repoFor returns the cached engine for a model value, pointer or type.
func (h *Hub) repoFor(model any) (*repo, error) {
	t, err := structType(model)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.repos[t]; ok {
		return r, nil
	}
	meta, err := h.opts.Registry.MetadataFor(t)
	if err != nil {
		return nil, err
	}
	r := newRepo(h.db, meta, h.opts)
	h.repos[t] = r
	return r, nil
}

// Insert persists obj, writing a generated primary key back onto it.
func (h *Hub) Insert(ctx context.Context, obj any) error {
	r, err := h.repoFor(obj)
	if err != nil {
		return err
	}
	return r.insert(ctx, obj)
}

// InsertMany persists records of one model, in order.
func (h *Hub) InsertMany(ctx context.Context, model any, objs []any) error {
	r, err := h.repoFor(model)
	if err != nil {
		return err
	}
	return r.insertMany(ctx, objs)
}

// Update writes obj's columns by primary key.
func (h *Hub) Update(ctx context.Context, obj any) (int64, error) {
	r, err := h.repoFor(obj)
	if err != nil {
		return 0, err
	}
	return r.update(ctx, obj)
}

// Delete removes obj's row by primary key.
func (h *Hub) Delete(ctx context.Context, obj any) (int64, error) {
	r, err := h.repoFor(obj)
	if err != nil {
		return 0, err
	}
	return r.delete(ctx, obj)
}

// Get loads a record of model's type by primary key, or nil when absent.
func (h *Hub) Get(ctx context.Context, model any, pk any) (any, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, pk)
}

// List loads records of model's type matching q.
func (h *Hub) List(ctx context.Context, model any, q Query) ([]any, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, q)
}

// Count counts records of model's type matching the condition.
func (h *Hub) Count(ctx context.Context, model any, where ...Expr) (int64, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return 0, err
	}
	return r.count(ctx, where)
}

// Exists reports whether any record of model's type matches the condition.
func (h *Hub) Exists(ctx context.Context, model any, where ...Expr) (bool, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return false, err
	}
	return r.exists(ctx, where)
}

// UpdateWhere updates columns on every record matching the condition.
func (h *Hub) UpdateWhere(ctx context.Context, model any, values map[string]any, where ...Expr) (int64, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return 0, err
	}
	return r.updateWhere(ctx, values, where)
}

// DeleteWhere removes every record matching the condition.
func (h *Hub) DeleteWhere(ctx context.Context, model any, where ...Expr) (int64, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return 0, err
	}
	return r.deleteWhere(ctx, where)
}

// GetOrCreate looks up a record by a unique column set, inserting it when
// absent.
func (h *Hub) GetOrCreate(ctx context.Context, model any, lookup, defaults map[string]any) (any, bool, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return nil, false, err
	}
	return r.getOrCreate(ctx, lookup, defaults)
}

// Create inserts obj with related records in one transaction.
func (h *Hub) Create(ctx context.Context, obj any, relations map[string]any) error {
	r, err := h.repoFor(obj)
	if err != nil {
		return err
	}
	return r.create(ctx, obj, relations)
}

// GetRelated loads a record by primary key with the named relations.
func (h *Hub) GetRelated(ctx context.Context, model any, pk any, include []string) (any, map[string]any, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return nil, nil, err
	}
	return r.getRelated(ctx, pk, include)
}

// ListRelated loads records matching q with the named relations.
func (h *Hub) ListRelated(ctx context.Context, model any, q Query, include []string) ([]any, []map[string]any, error) {
	r, err := h.repoFor(model)
	if err != nil {
		return nil, nil, err
	}
	return r.listRelated(ctx, q, include)
}

// HubRepository returns a typed repository sharing the hub's database,
// registry and engine cache.
func HubRepository[T any](h *Hub) (*Repository[T], error) {
	r, err := h.repoFor(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return &Repository[T]{inner: r}, nil
}

// Session couples a hub with a transaction scope. All hub operations are
// available on the session; Begin runs them transactionally.
type Session struct {
	*Hub
	db Database

	mu     sync.Mutex
	active bool
}

// NewSession creates a session with default repository options.
func NewSession(db Database) *Session {
	return NewSessionWithOptions(db, DefaultRepositoryOptions())
}

// NewSessionWithOptions creates a session with explicit repository
// options.
func NewSessionWithOptions(db Database, opts RepositoryOptions) *Session {
	return &Session{
		Hub: NewHubWithOptions(db, opts),
		db:  db,
	}
}

// Begin runs fn inside a transaction: commit on nil return, rollback on
// error or panic. A session runs at most one transaction at a time;
// re-entering fails with ErrNestedTransaction.
func (s *Session) Begin(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return wrapError("session.begin", ErrNestedTransaction)
	}
	s.active = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()
	return s.db.Transaction(ctx, fn)
}

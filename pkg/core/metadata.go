package core

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// RelationKind distinguishes the two supported relation shapes.
type RelationKind string

const (
	// RelationHasMany links one record to many records holding its key.
	RelationHasMany RelationKind = "has_many"
	// RelationBelongsTo links a record to the one record its foreign key
	// points at.
	RelationBelongsTo RelationKind = "belongs_to"
)

// Relation declares a named link between two models. Target is a value or
// pointer of the related struct type, used only for its type information.
type Relation struct {
	Name      string
	Target    any
	LocalKey  string
	RemoteKey string
	Kind      RelationKind
}

// RelationSpec is a resolved relation held in model metadata.
type RelationSpec struct {
	Name      string
	Target    reflect.Type
	LocalKey  string
	RemoteKey string
	Kind      RelationKind
}

// Index declares a model-level index over one or more columns.
type Index struct {
	Columns []string
	Unique  bool
	Name    string
}

// Tabler overrides the default table name derived from the struct name.
type Tabler interface {
	TableName() string
}

// RelationsDeclarer lists a model's explicit relations. Explicit
// declarations always win over inferred ones of the same name.
type RelationsDeclarer interface {
	Relations() []Relation
}

// Indexer lists a model's multi-column indexes. Single-column indexes are
// usually declared with the index/unique tag options instead.
type Indexer interface {
	Indexes() []Index
}

// FieldInfo describes one persisted struct field.
type FieldInfo struct {
	Column    string
	Path      []int // struct field index path, supports embedding
	PK        bool
	Auto      bool
	Unique    bool
	HasIndex  bool
	IndexName string
	JSON      bool
	FKTable   string
	FKColumn  string
	Type      reflect.Type
	Nullable  bool
}

// ModelMetadata is the resolved mapping of one struct type.
type ModelMetadata struct {
	Type     reflect.Type
	Table    string
	PK       string
	AutoPK   bool
	Columns  []string
	Writable []string // all columns except an auto-generated primary key
	Fields   map[string]*FieldInfo
	Indexes  []Index

	// Relations holds explicit declarations merged with registry-level
	// inference; explicit entries win on name collision.
	Relations map[string]RelationSpec

	explicitRelations map[string]RelationSpec
	fieldOrder        []*FieldInfo
	uniqueSets        [][]string // sorted column sets usable as lookup keys
}

// FieldByColumn returns the field mapped to column.
func (m *ModelMetadata) FieldByColumn(column string) (*FieldInfo, bool) {
	f, ok := m.Fields[column]
	return f, ok
}

// IsUniqueColumnSet reports whether columns exactly matches the primary
// key, a unique field, or a declared unique index.
func (m *ModelMetadata) IsUniqueColumnSet(columns []string) bool {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	for _, set := range m.uniqueSets {
		if len(set) != len(sorted) {
			continue
		}
		match := true
		for i := range set {
			if set[i] != sorted[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// structType normalizes a model value or pointer to its struct type.
func structType(model any) (reflect.Type, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrConfig)
	}
	t, ok := model.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(model)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: model must be a struct, got %s", ErrConfig, t.Kind())
	}
	return t, nil
}

// buildMetadata resolves the mapping of one struct type from its tags and
// optional interface methods. Relations here are the explicit ones only;
// inference happens at registry level once both sides are known.
func buildMetadata(t reflect.Type) (*ModelMetadata, error) {
	meta := &ModelMetadata{
		Type:              t,
		Table:             tableName(t),
		Fields:            map[string]*FieldInfo{},
		Relations:         map[string]RelationSpec{},
		explicitRelations: map[string]RelationSpec{},
	}

	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		field, err := parseField(t, sf)
		if err != nil {
			return nil, err
		}
		if field == nil {
			continue
		}
		if _, dup := meta.Fields[field.Column]; dup {
			return nil, fmt.Errorf("%w: %s maps column %q twice", ErrConfig, t.Name(), field.Column)
		}
		meta.Fields[field.Column] = field
		meta.fieldOrder = append(meta.fieldOrder, field)
		meta.Columns = append(meta.Columns, field.Column)
		if field.PK {
			if meta.PK != "" {
				return nil, fmt.Errorf("%w: %s declares more than one primary key", ErrConfig, t.Name())
			}
			meta.PK = field.Column
			meta.AutoPK = field.Auto
		}
	}
	if meta.PK == "" {
		return nil, fmt.Errorf("%w: %s declares no primary key", ErrConfig, t.Name())
	}

	for _, f := range meta.fieldOrder {
		if f.PK && f.Auto {
			continue
		}
		meta.Writable = append(meta.Writable, f.Column)
	}

	if err := collectExplicitRelations(t, meta); err != nil {
		return nil, err
	}
	if err := collectModelIndexes(t, meta); err != nil {
		return nil, err
	}
	meta.uniqueSets = collectUniqueSets(meta)
	return meta, nil
}

func parseField(t reflect.Type, sf reflect.StructField) (*FieldInfo, error) {
	tag := sf.Tag.Get("db")
	if tag == "-" {
		return nil, nil
	}
	parts := strings.Split(tag, ",")
	column := strings.TrimSpace(parts[0])
	if column == "" {
		column = toSnake(sf.Name)
	}

	field := &FieldInfo{
		Column:   column,
		Path:     sf.Index,
		Type:     sf.Type,
		Nullable: isNullableType(sf.Type),
	}
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		name, value, _ := strings.Cut(opt, "=")
		switch name {
		case "":
		case "pk":
			field.PK = true
		case "auto":
			field.Auto = true
		case "unique":
			field.Unique = true
			field.HasIndex = true
			field.IndexName = value
		case "index":
			field.HasIndex = true
			field.IndexName = value
		case "json":
			field.JSON = true
		default:
			return nil, fmt.Errorf("%w: %s.%s has unknown db tag option %q", ErrConfig, t.Name(), sf.Name, name)
		}
	}
	if field.Auto && !field.PK {
		return nil, fmt.Errorf("%w: %s.%s is auto but not the primary key", ErrConfig, t.Name(), sf.Name)
	}
	if field.Auto && !isIntegerKind(sf.Type.Kind()) {
		return nil, fmt.Errorf("%w: %s.%s is auto but not an integer", ErrConfig, t.Name(), sf.Name)
	}

	if fk := sf.Tag.Get("fk"); fk != "" {
		table, col, ok := strings.Cut(fk, ".")
		if !ok || table == "" || col == "" {
			return nil, fmt.Errorf("%w: %s.%s has malformed fk tag %q, want \"table.column\"", ErrConfig, t.Name(), sf.Name, fk)
		}
		field.FKTable = table
		field.FKColumn = col
	}
	return field, nil
}

func collectExplicitRelations(t reflect.Type, meta *ModelMetadata) error {
	decl, ok := reflect.New(t).Interface().(RelationsDeclarer)
	if !ok {
		return nil
	}
	for _, rel := range decl.Relations() {
		if rel.Name == "" {
			return fmt.Errorf("%w: %s declares a relation without a name", ErrConfig, t.Name())
		}
		if rel.Kind != RelationHasMany && rel.Kind != RelationBelongsTo {
			return fmt.Errorf("%w: relation %q on %s has unknown kind %q", ErrConfig, rel.Name, t.Name(), rel.Kind)
		}
		target, err := structType(rel.Target)
		if err != nil {
			return fmt.Errorf("%w: relation %q on %s: invalid target", ErrConfig, rel.Name, t.Name())
		}
		if _, ok := meta.Fields[rel.LocalKey]; !ok {
			return fmt.Errorf("%w: relation %q on %s: local key %q is not a column", ErrConfig, rel.Name, t.Name(), rel.LocalKey)
		}
		if !typeHasColumn(target, rel.RemoteKey) {
			return fmt.Errorf("%w: relation %q on %s: remote key %q is not a column of %s", ErrConfig, rel.Name, t.Name(), rel.RemoteKey, target.Name())
		}
		if _, dup := meta.explicitRelations[rel.Name]; dup {
			return fmt.Errorf("%w: %s declares relation %q twice", ErrConfig, t.Name(), rel.Name)
		}
		spec := RelationSpec{
			Name:      rel.Name,
			Target:    target,
			LocalKey:  rel.LocalKey,
			RemoteKey: rel.RemoteKey,
			Kind:      rel.Kind,
		}
		meta.explicitRelations[rel.Name] = spec
		meta.Relations[rel.Name] = spec
	}
	return nil
}

func collectModelIndexes(t reflect.Type, meta *ModelMetadata) error {
	decl, ok := reflect.New(t).Interface().(Indexer)
	if !ok {
		return nil
	}
	for _, idx := range decl.Indexes() {
		if len(idx.Columns) == 0 {
			return fmt.Errorf("%w: %s declares an index without columns", ErrConfig, t.Name())
		}
		for _, col := range idx.Columns {
			if _, ok := meta.Fields[col]; !ok {
				return fmt.Errorf("%w: %s index references unknown column %q", ErrConfig, t.Name(), col)
			}
		}
		meta.Indexes = append(meta.Indexes, idx)
	}
	return nil
}

func collectUniqueSets(meta *ModelMetadata) [][]string {
	sets := [][]string{{meta.PK}}
	for _, f := range meta.fieldOrder {
		if f.Unique && f.Column != meta.PK {
			sets = append(sets, []string{f.Column})
		}
	}
	for _, idx := range meta.Indexes {
		if !idx.Unique {
			continue
		}
		cols := append([]string(nil), idx.Columns...)
		sort.Strings(cols)
		sets = append(sets, cols)
	}
	return sets
}

// typeHasColumn checks whether target maps column, without fully resolving
// its metadata (which may not be registered yet).
func typeHasColumn(target reflect.Type, column string) bool {
	for _, sf := range reflect.VisibleFields(target) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		tag := sf.Tag.Get("db")
		if tag == "-" {
			continue
		}
		name := strings.TrimSpace(strings.Split(tag, ",")[0])
		if name == "" {
			name = toSnake(sf.Name)
		}
		if name == column {
			return true
		}
	}
	return false
}

func tableName(t reflect.Type) string {
	if tabler, ok := reflect.New(t).Interface().(Tabler); ok {
		if name := tabler.TableName(); name != "" {
			return name
		}
	}
	return toSnake(t.Name())
}

// toSnake converts a Go field name to snake_case, keeping initialisms
// together: AuthorID becomes author_id, not author_i_d.
func toSnake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			prevLower := i > 0 && isLowerOrDigit(runes[i-1])
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if i > 0 && (prevLower || nextLower) {
				b.WriteRune('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isLowerOrDigit(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// pluralize derives a has_many relation name from a table name.
func pluralize(table string) string {
	switch {
	case strings.HasSuffix(table, "s"),
		strings.HasSuffix(table, "x"),
		strings.HasSuffix(table, "z"),
		strings.HasSuffix(table, "ch"),
		strings.HasSuffix(table, "sh"):
		return table + "es"
	case strings.HasSuffix(table, "y") && len(table) > 1 && !isVowel(rune(table[len(table)-2])):
		return table[:len(table)-1] + "ies"
	default:
		return table + "s"
	}
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiou", r)
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNullableType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return true
	}
	return false
}

// Registry resolves and caches model metadata and performs cross-model
// relation inference. It also tracks which models have been prepared
// (schema ensured) so repositories sharing a registry register each model
// once.
type Registry struct {
	mu      sync.RWMutex
	models  map[reflect.Type]*ModelMetadata
	byTable map[string]*ModelMetadata
	active  map[reflect.Type]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models:  map[reflect.Type]*ModelMetadata{},
		byTable: map[string]*ModelMetadata{},
		active:  map[reflect.Type]bool{},
	}
}

// Register resolves metadata for the given models and re-runs relation
// inference across everything registered so far. Registering a model twice
// is a no-op.
func (r *Registry) Register(models ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, model := range models {
		if _, err := r.metadataForTypeLocked(model); err != nil {
			return err
		}
	}
	return r.inferRelationsLocked()
}

// MetadataFor returns the metadata of a model value or pointer,
// registering it on demand.
func (r *Registry) MetadataFor(model any) (*ModelMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, err := r.metadataForTypeLocked(model)
	if err != nil {
		return nil, err
	}
	if err := r.inferRelationsLocked(); err != nil {
		return nil, err
	}
	return meta, nil
}

// Lookup returns cached metadata for a struct type, if registered.
func (r *Registry) Lookup(t reflect.Type) (*ModelMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.models[t]
	return meta, ok
}

// LookupTable returns cached metadata for a table name, if registered.
func (r *Registry) LookupTable(table string) (*ModelMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.byTable[table]
	return meta, ok
}

func (r *Registry) metadataForTypeLocked(model any) (*ModelMetadata, error) {
	t, err := structType(model)
	if err != nil {
		return nil, err
	}
	if meta, ok := r.models[t]; ok {
		return meta, nil
	}
	meta, err := buildMetadata(t)
	if err != nil {
		return nil, err
	}
	if other, clash := r.byTable[meta.Table]; clash && other.Type != t {
		return nil, fmt.Errorf("%w: table %q is mapped by both %s and %s", ErrConfig, meta.Table, other.Type.Name(), t.Name())
	}
	r.models[t] = meta
	r.byTable[meta.Table] = meta
	return meta, nil
}

// inferRelationsLocked rebuilds inferred relations across all registered
// models from their fk tags. Explicit declarations always win; two
// different inferred relations claiming the same name on one model is a
// configuration error that requires an explicit declaration.
func (r *Registry) inferRelationsLocked() error {
	inferred := map[reflect.Type]map[string]RelationSpec{}
	add := func(meta *ModelMetadata, spec RelationSpec) error {
		if _, explicit := meta.explicitRelations[spec.Name]; explicit {
			return nil
		}
		bucket := inferred[meta.Type]
		if bucket == nil {
			bucket = map[string]RelationSpec{}
			inferred[meta.Type] = bucket
		}
		if prev, ok := bucket[spec.Name]; ok && prev != spec {
			return fmt.Errorf("%w: %s infers relation %q twice; declare it explicitly", ErrConfig, meta.Type.Name(), spec.Name)
		}
		bucket[spec.Name] = spec
		return nil
	}

	for _, meta := range r.models {
		for _, f := range meta.fieldOrder {
			if f.FKTable == "" {
				continue
			}
			target, ok := r.byTable[f.FKTable]
			if !ok {
				continue // other side not registered yet
			}
			if !typeHasColumn(target.Type, f.FKColumn) {
				return fmt.Errorf("%w: %s.%s references unknown column %s.%s", ErrConfig, meta.Type.Name(), f.Column, f.FKTable, f.FKColumn)
			}
			belongsToName := strings.TrimSuffix(f.Column, "_id")
			if belongsToName == "" {
				belongsToName = f.Column
			}
			if err := add(meta, RelationSpec{
				Name:      belongsToName,
				Target:    target.Type,
				LocalKey:  f.Column,
				RemoteKey: f.FKColumn,
				Kind:      RelationBelongsTo,
			}); err != nil {
				return err
			}
			if err := add(target, RelationSpec{
				Name:      pluralize(meta.Table),
				Target:    meta.Type,
				LocalKey:  f.FKColumn,
				RemoteKey: f.Column,
				Kind:      RelationHasMany,
			}); err != nil {
				return err
			}
		}
	}

	for _, meta := range r.models {
		merged := map[string]RelationSpec{}
		for name, spec := range meta.explicitRelations {
			merged[name] = spec
		}
		for name, spec := range inferred[meta.Type] {
			merged[name] = spec
		}
		meta.Relations = merged
	}
	return nil
}

func (r *Registry) markActive(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[t] = true
}

func (r *Registry) isActive(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[t]
}

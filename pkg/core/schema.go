package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// SchemaConflict selects how EnsureSchema treats an existing table whose
// shape is incompatible with the model.
type SchemaConflict string

const (
	// SchemaConflictRaise fails with ErrSchemaConflict.
	SchemaConflictRaise SchemaConflict = "raise"
	// SchemaConflictRecreate drops and recreates the table. Data is lost.
	SchemaConflictRecreate SchemaConflict = "recreate"
)

// sqlColumnType maps a field's Go type to a portable SQL column type.
func sqlColumnType(f *FieldInfo) string {
	if f.JSON {
		return "TEXT"
	}
	t := f.Type
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return "TIMESTAMP"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "INTEGER"
	case reflect.Float32, reflect.Float64:
		return "REAL"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "BLOB"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// columnDef renders one column definition of a CREATE TABLE statement.
func columnDef(d Dialect, meta *ModelMetadata, f *FieldInfo) string {
	if f.PK && f.Auto {
		return d.AutoPKSQL(f.Column)
	}
	var b strings.Builder
	b.WriteString(d.Quote(f.Column))
	b.WriteString(" ")
	b.WriteString(sqlColumnType(f))
	if f.PK {
		b.WriteString(" PRIMARY KEY")
	} else if f.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if f.FKTable != "" {
		fmt.Fprintf(&b, " REFERENCES %s (%s)", d.Quote(f.FKTable), d.Quote(f.FKColumn))
	}
	return b.String()
}

// CreateTableSQL renders the CREATE TABLE statement for a model.
func CreateTableSQL(meta *ModelMetadata, d Dialect, ifNotExists bool) string {
	defs := make([]string, 0, len(meta.fieldOrder))
	for _, f := range meta.fieldOrder {
		defs = append(defs, columnDef(d, meta, f))
	}
	clause := "CREATE TABLE "
	if ifNotExists {
		clause += "IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (%s)", clause, d.Quote(meta.Table), strings.Join(defs, ", "))
}

// CreateSchemaSQL renders the full DDL of a model: the table followed by
// its indexes.
func CreateSchemaSQL(meta *ModelMetadata, d Dialect, ifNotExists bool) ([]string, error) {
	statements := []string{CreateTableSQL(meta, d, ifNotExists)}
	specs, err := indexSpecs(meta)
	if err != nil {
		return nil, err
	}
	for _, idx := range specs {
		stmt, err := CreateIndexSQL(meta, d, idx, ifNotExists)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, nil
}

// runAtomic runs fn inside a transaction, joining an already-open one on
// adapters that can report it (lazy registration may fire mid-transaction).
func runAtomic(ctx context.Context, db Database, fn func(ctx context.Context) error) error {
	type txAware interface{ InTransaction() bool }
	if ta, ok := db.(txAware); ok && ta.InTransaction() {
		return fn(ctx)
	}
	return db.Transaction(ctx, fn)
}

// ApplySchema executes a model's DDL in one transaction. With ifNotExists
// it is idempotent. Returns the statements applied.
func ApplySchema(ctx context.Context, db Database, meta *ModelMetadata, ifNotExists bool) ([]string, error) {
	op := meta.Table + ".apply_schema"
	statements, err := CreateSchemaSQL(meta, db.Dialect(), ifNotExists)
	if err != nil {
		return nil, wrapError(op, err)
	}
	err = runAtomic(ctx, db, func(ctx context.Context) error {
		for _, stmt := range statements {
			if _, err := db.Execute(ctx, stmt, Params{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(op, err)
	}
	return statements, nil
}

// EnsureSchema brings the backing table in line with the model: creates
// it when missing, adds missing columns and indexes when present, and
// applies the conflict policy when the existing shape is incompatible
// (columns removed or retyped). Returns the statements applied.
func EnsureSchema(ctx context.Context, db Database, meta *ModelMetadata, conflict SchemaConflict) ([]string, error) {
	op := meta.Table + ".ensure_schema"
	d := db.Dialect()

	existing, err := introspectColumns(ctx, db, meta.Table)
	if err != nil {
		return nil, wrapError(op, err)
	}
	if len(existing) == 0 {
		return ApplySchema(ctx, db, meta, true)
	}

	var conflicts []string
	for col, dbType := range existing {
		f, ok := meta.Fields[col]
		if !ok {
			conflicts = append(conflicts, fmt.Sprintf("column %q exists in the table but not the model", col))
			continue
		}
		want := normalizeSQLType(sqlColumnType(f))
		if f.PK && f.Auto {
			want = "INTEGER"
		}
		if got := normalizeSQLType(dbType); got != want {
			conflicts = append(conflicts, fmt.Sprintf("column %q is %s, model wants %s", col, got, want))
		}
	}
	if len(conflicts) > 0 {
		if conflict != SchemaConflictRecreate {
			return nil, wrapError(op, fmt.Errorf("%w: %s", ErrSchemaConflict, strings.Join(conflicts, "; ")))
		}
		drop := "DROP TABLE " + d.Quote(meta.Table)
		if err := runAtomic(ctx, db, func(ctx context.Context) error {
			_, err := db.Execute(ctx, drop, Params{})
			return err
		}); err != nil {
			return nil, wrapError(op, err)
		}
		applied, err := ApplySchema(ctx, db, meta, true)
		if err != nil {
			return nil, err
		}
		return append([]string{drop}, applied...), nil
	}

	var statements []string
	for _, f := range meta.fieldOrder {
		if _, ok := existing[f.Column]; ok {
			continue
		}
		statements = append(statements,
			fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(meta.Table), addColumnDef(d, meta, f)))
	}

	specs, err := indexSpecs(meta)
	if err != nil {
		return nil, wrapError(op, err)
	}
	if len(specs) > 0 {
		have, err := introspectIndexNames(ctx, db, meta.Table)
		if err != nil {
			return nil, wrapError(op, err)
		}
		for _, idx := range specs {
			if have[indexName(meta, idx)] {
				continue
			}
			stmt, err := CreateIndexSQL(meta, d, idx, true)
			if err != nil {
				return nil, wrapError(op, err)
			}
			statements = append(statements, stmt)
		}
	}
	if len(statements) == 0 {
		return nil, nil
	}

	err = runAtomic(ctx, db, func(ctx context.Context) error {
		for _, stmt := range statements {
			if _, err := db.Execute(ctx, stmt, Params{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(op, err)
	}
	return statements, nil
}

// addColumnDef renders a column definition usable in ALTER TABLE ADD
// COLUMN. NOT NULL is dropped since existing rows cannot satisfy it
// without a default.
func addColumnDef(d Dialect, meta *ModelMetadata, f *FieldInfo) string {
	var b strings.Builder
	b.WriteString(d.Quote(f.Column))
	b.WriteString(" ")
	b.WriteString(sqlColumnType(f))
	if f.FKTable != "" {
		fmt.Fprintf(&b, " REFERENCES %s (%s)", d.Quote(f.FKTable), d.Quote(f.FKColumn))
	}
	return b.String()
}

// introspectColumns returns the existing column name to declared type
// mapping, empty when the table does not exist.
func introspectColumns(ctx context.Context, db Database, table string) (map[string]string, error) {
	d := db.Dialect()
	var rows []Row
	var err error
	var nameKey, typeKey string
	switch d.Name() {
	case "sqlite":
		rows, err = db.FetchAll(ctx, fmt.Sprintf("PRAGMA table_info(%s)", d.Quote(table)), Params{})
		nameKey, typeKey = "name", "type"
	case "postgres":
		rows, err = db.FetchAll(ctx,
			"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1",
			Params{Args: []any{table}})
		nameKey, typeKey = "column_name", "data_type"
	case "mysql":
		rows, err = db.FetchAll(ctx,
			"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ? AND table_schema = DATABASE()",
			Params{Args: []any{table}})
		nameKey, typeKey = "column_name", "data_type"
	default:
		return nil, fmt.Errorf("%w: schema introspection for dialect %q", ErrNotSupported, d.Name())
	}
	if err != nil {
		return nil, err
	}
	columns := make(map[string]string, len(rows))
	for _, row := range rows {
		name := stringValue(row[nameKey])
		if name == "" {
			continue
		}
		columns[name] = stringValue(row[typeKey])
	}
	return columns, nil
}

// introspectIndexNames returns the names of existing indexes on table.
func introspectIndexNames(ctx context.Context, db Database, table string) (map[string]bool, error) {
	d := db.Dialect()
	var rows []Row
	var err error
	var key string
	switch d.Name() {
	case "sqlite":
		rows, err = db.FetchAll(ctx, fmt.Sprintf("PRAGMA index_list(%s)", d.Quote(table)), Params{})
		key = "name"
	case "postgres":
		rows, err = db.FetchAll(ctx,
			"SELECT indexname FROM pg_indexes WHERE tablename = $1",
			Params{Args: []any{table}})
		key = "indexname"
	case "mysql":
		rows, err = db.FetchAll(ctx,
			"SELECT DISTINCT index_name FROM information_schema.statistics WHERE table_name = ? AND table_schema = DATABASE()",
			Params{Args: []any{table}})
		key = "index_name"
	default:
		return nil, fmt.Errorf("%w: index introspection for dialect %q", ErrNotSupported, d.Name())
	}
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(rows))
	for _, row := range rows {
		if name := stringValue(row[key]); name != "" {
			names[name] = true
		}
	}
	return names, nil
}

// normalizeSQLType folds driver- and dialect-specific type spellings into
// the portable names used by sqlColumnType.
func normalizeSQLType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT", "SERIAL", "BIGSERIAL", "INT4", "INT8":
		return "INTEGER"
	case "TEXT", "VARCHAR", "CHARACTER VARYING", "CHAR", "CHARACTER", "CLOB", "LONGTEXT", "MEDIUMTEXT", "UUID":
		return "TEXT"
	case "REAL", "FLOAT", "DOUBLE", "DOUBLE PRECISION", "NUMERIC", "DECIMAL", "FLOAT4", "FLOAT8":
		return "REAL"
	case "BLOB", "BYTEA", "BINARY", "VARBINARY", "LONGBLOB":
		return "BLOB"
	case "BOOLEAN", "BOOL":
		return "BOOLEAN"
	case "TIMESTAMP", "DATETIME", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ":
		return "TIMESTAMP"
	default:
		return t
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

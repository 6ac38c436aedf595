package core

import "context"

// ParamStyle identifies how a dialect binds statement parameters.
type ParamStyle string

const (
	// ParamStyleNamed binds by :key placeholders (SQLite).
	ParamStyleNamed ParamStyle = "named"
	// ParamStyleOrdinal binds by 1-based $n placeholders (Postgres).
	ParamStyleOrdinal ParamStyle = "ordinal"
	// ParamStyleQMark binds by ? placeholders in statement order (MySQL).
	ParamStyleQMark ParamStyle = "qmark"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// NamedParams holds parameters for named-style statements.
type NamedParams map[string]any

// Params carries the bound parameters of a compiled statement. Named and
// Args are mutually exclusive; which one is populated follows the dialect's
// ParamStyle.
type Params struct {
	Named NamedParams
	Args  []any
}

// IsEmpty reports whether no parameters are bound.
func (p Params) IsEmpty() bool {
	return len(p.Named) == 0 && len(p.Args) == 0
}

// Result reports the outcome of a write statement.
type Result interface {
	// LastInsertId returns the key generated for an insert, when the
	// driver supports it.
	LastInsertId() (int64, error)
	// RowsAffected returns the number of rows changed by the statement.
	RowsAffected() (int64, error)
}

// Dialect abstracts the SQL flavor differences the compiler and schema
// derivation need to know about.
type Dialect interface {
	// Name identifies the dialect ("sqlite", "postgres", "mysql").
	Name() string
	// ParamStyle reports how parameters are bound.
	ParamStyle() ParamStyle
	// Quote wraps an identifier in the dialect's quoting characters.
	Quote(ident string) string
	// Placeholder renders a parameter placeholder. key is used by named
	// styles, pos is the 1-based position used by ordinal styles.
	Placeholder(key string, pos int) string
	// SupportsReturning reports whether INSERT ... RETURNING works.
	SupportsReturning() bool
	// ReturningClause renders the clause appended to an insert to read
	// back the generated primary key.
	ReturningClause(pk string) string
	// AutoPKSQL renders the column definition of an auto-increment
	// integer primary key.
	AutoPKSQL(pk string) string
	// DefaultValuesSQL renders the values-free tail of an insert with no
	// explicit columns.
	DefaultValuesSQL() string
}

// Database is the persistence port the repository layer talks to. Not-found
// reads return nil results, never errors. Implementations classify driver
// constraint violations so that errors.Is(err, ErrConflict) holds.
type Database interface {
	// Dialect returns the SQL dialect of the backend.
	Dialect() Dialect
	// Transaction runs fn inside a transaction. A nil return commits, an
	// error or panic rolls back. Re-entering while a transaction is
	// active fails with ErrNestedTransaction.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	// Execute runs a write statement.
	Execute(ctx context.Context, query string, params Params) (Result, error)
	// FetchOne runs a query and returns the first row, or nil when the
	// result is empty.
	FetchOne(ctx context.Context, query string, params Params) (Row, error)
	// FetchAll runs a query and returns all rows.
	FetchAll(ctx context.Context, query string, params Params) ([]Row, error)
}

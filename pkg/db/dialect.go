// Package db provides the concrete SQL backends: dialect definitions,
// a database/sql adapter implementing core.Database, a fixed-size
// connection pool, and driver-aware constraint classification.
package db

import (
	"fmt"

	"github.com/relstore/relstore/pkg/core"
)

// SQLiteDialect is the SQLite flavor: named :key parameters, double-quote
// identifiers, RETURNING support.
type SQLiteDialect struct{}

// Name identifies the dialect.
func (SQLiteDialect) Name() string { return "sqlite" }

// ParamStyle reports named binding.
func (SQLiteDialect) ParamStyle() core.ParamStyle { return core.ParamStyleNamed }

// Quote wraps an identifier in double quotes.
func (SQLiteDialect) Quote(ident string) string { return `"` + ident + `"` }

// Placeholder renders a :key placeholder.
func (SQLiteDialect) Placeholder(key string, pos int) string { return ":" + key }

// SupportsReturning reports RETURNING support.
func (SQLiteDialect) SupportsReturning() bool { return true }

// ReturningClause renders the insert tail reading back the key.
func (d SQLiteDialect) ReturningClause(pk string) string {
	return " RETURNING " + d.Quote(pk)
}

// AutoPKSQL renders an auto-increment integer primary key definition.
func (d SQLiteDialect) AutoPKSQL(pk string) string {
	return d.Quote(pk) + " INTEGER PRIMARY KEY"
}

// DefaultValuesSQL renders the values-free insert tail.
func (SQLiteDialect) DefaultValuesSQL() string { return " DEFAULT VALUES" }

// PostgresDialect is the PostgreSQL flavor: ordinal $n parameters,
// double-quote identifiers, RETURNING support.
type PostgresDialect struct{}

// Name identifies the dialect.
func (PostgresDialect) Name() string { return "postgres" }

// ParamStyle reports ordinal binding.
func (PostgresDialect) ParamStyle() core.ParamStyle { return core.ParamStyleOrdinal }

// Quote wraps an identifier in double quotes.
func (PostgresDialect) Quote(ident string) string { return `"` + ident + `"` }

// Placeholder renders a 1-based $n placeholder.
func (PostgresDialect) Placeholder(key string, pos int) string {
	return fmt.Sprintf("$%d", pos)
}

// SupportsReturning reports RETURNING support.
func (PostgresDialect) SupportsReturning() bool { return true }

// ReturningClause renders the insert tail reading back the key.
func (d PostgresDialect) ReturningClause(pk string) string {
	return " RETURNING " + d.Quote(pk)
}

// AutoPKSQL renders an auto-increment integer primary key definition.
func (d PostgresDialect) AutoPKSQL(pk string) string {
	return d.Quote(pk) + " SERIAL PRIMARY KEY"
}

// DefaultValuesSQL renders the values-free insert tail.
func (PostgresDialect) DefaultValuesSQL() string { return " DEFAULT VALUES" }

// MySQLDialect is the MySQL flavor: ? parameters, backtick identifiers,
// no RETURNING.
type MySQLDialect struct{}

// Name identifies the dialect.
func (MySQLDialect) Name() string { return "mysql" }

// ParamStyle reports question-mark binding.
func (MySQLDialect) ParamStyle() core.ParamStyle { return core.ParamStyleQMark }

// Quote wraps an identifier in backticks.
func (MySQLDialect) Quote(ident string) string { return "`" + ident + "`" }

// Placeholder renders a ? placeholder.
func (MySQLDialect) Placeholder(key string, pos int) string { return "?" }

// SupportsReturning reports that MySQL lacks RETURNING; generated keys
// come from LastInsertId.
func (MySQLDialect) SupportsReturning() bool { return false }

// ReturningClause renders nothing.
func (MySQLDialect) ReturningClause(pk string) string { return "" }

// AutoPKSQL renders an auto-increment integer primary key definition.
func (d MySQLDialect) AutoPKSQL(pk string) string {
	return d.Quote(pk) + " INT AUTO_INCREMENT PRIMARY KEY"
}

// DefaultValuesSQL renders the values-free insert tail MySQL accepts.
func (MySQLDialect) DefaultValuesSQL() string { return " () VALUES ()" }

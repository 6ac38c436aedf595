package relstore

import (
	"github.com/relstore/relstore/pkg/core"
	"github.com/relstore/relstore/pkg/db"
)

// OpenSQLite opens a SQLite-backed database (path or ":memory:").
func OpenSQLite(path string) (*db.Database, error) {
	return db.OpenSQLite(path)
}

// OpenPostgres opens a PostgreSQL-backed database from a DSN.
func OpenPostgres(dsn string) (*db.Database, error) {
	return db.OpenPostgres(dsn)
}

// OpenMySQL opens a MySQL-backed database from a DSN.
func OpenMySQL(dsn string) (*db.Database, error) {
	return db.OpenMySQL(dsn)
}

// NewSession creates a multi-model session with default options.
func NewSession(database core.Database) *core.Session {
	return core.NewSession(database)
}

// NewSessionWithOptions creates a multi-model session with explicit
// repository options.
func NewSessionWithOptions(database core.Database, opts core.RepositoryOptions) *core.Session {
	return core.NewSessionWithOptions(database, opts)
}

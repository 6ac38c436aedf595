package db

import (
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql"   // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib"   // Postgres driver
	_ "modernc.org/sqlite"               // pure-Go SQLite driver
)

// OpenSQLite opens a SQLite database file (or ":memory:") with WAL mode
// and sane pragmas, wrapped in a Database.
func OpenSQLite(path string) (*Database, error) {
	if !strings.Contains(path, "?") {
		path += "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000"
	}
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids lock churn.
	sqldb.SetMaxOpenConns(1)
	return New(sqldb, SQLiteDialect{}), nil
}

// OpenPostgres opens a PostgreSQL database through the pgx stdlib driver.
func OpenPostgres(dsn string) (*Database, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return New(sqldb, PostgresDialect{}), nil
}

// OpenMySQL opens a MySQL database. The DSN should carry parseTime=true
// so TIMESTAMP columns scan into time.Time.
func OpenMySQL(dsn string) (*Database, error) {
	sqldb, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return New(sqldb, MySQLDialect{}), nil
}

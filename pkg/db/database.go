package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/relstore/relstore/pkg/core"
)

// connection is the subset of *sql.DB and *sql.Conn the adapter needs.
type connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// executor is the statement surface shared by connections and
// transactions.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Database adapts a database/sql handle to core.Database. Statements
// issued while a transaction is open are routed through it; one Database
// runs at most one transaction at a time.
type Database struct {
	conn    connection
	dialect core.Dialect
	logger  core.Logger

	mu sync.Mutex
	tx *sql.Tx

	release func() error // set when borrowed from a pool
}

// New wraps an opened *sql.DB in a Database for the given dialect.
func New(sqldb *sql.DB, dialect core.Dialect) *Database {
	return &Database{conn: sqldb, dialect: dialect, logger: core.NopLogger()}
}

// NewWithConn wraps a single borrowed *sql.Conn.
func NewWithConn(conn *sql.Conn, dialect core.Dialect) *Database {
	return &Database{conn: conn, dialect: dialect, logger: core.NopLogger()}
}

// SetLogger installs a logger for statement-level debug output.
func (d *Database) SetLogger(logger core.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Dialect returns the SQL dialect of the backend.
func (d *Database) Dialect() core.Dialect {
	return d.dialect
}

// Close closes the underlying handle. A borrowed pool connection is
// returned to its pool instead.
func (d *Database) Close() error {
	if d.release != nil {
		return d.release()
	}
	if closer, ok := d.conn.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (d *Database) executor() executor {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return d.tx
	}
	return d.conn
}

// bindArgs converts compiled parameters into driver arguments.
func bindArgs(params core.Params) []any {
	if len(params.Named) > 0 {
		args := make([]any, 0, len(params.Named))
		for k, v := range params.Named {
			args = append(args, sql.Named(k, v))
		}
		return args
	}
	return params.Args
}

// Execute runs a write statement. Constraint violations are classified so
// errors.Is(err, core.ErrConflict) holds.
func (d *Database) Execute(ctx context.Context, query string, params core.Params) (core.Result, error) {
	d.logger.Debug("execute", "sql", query)
	res, err := d.executor().ExecContext(ctx, query, bindArgs(params)...)
	if err != nil {
		return nil, d.classify(err)
	}
	return res, nil
}

// FetchOne runs a query and returns the first row, or nil when the result
// is empty.
func (d *Database) FetchOne(ctx context.Context, query string, params core.Params) (core.Row, error) {
	d.logger.Debug("fetch_one", "sql", query)
	rows, err := d.executor().QueryContext(ctx, query, bindArgs(params)...)
	if err != nil {
		return nil, d.classify(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, d.classify(err)
		}
		return nil, nil
	}
	row, err := scanRow(rows)
	if err != nil {
		return nil, err
	}
	return row, rows.Err()
}

// FetchAll runs a query and returns all rows.
func (d *Database) FetchAll(ctx context.Context, query string, params core.Params) ([]core.Row, error) {
	d.logger.Debug("fetch_all", "sql", query)
	rows, err := d.executor().QueryContext(ctx, query, bindArgs(params)...)
	if err != nil {
		return nil, d.classify(err)
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// scanRow reads the current row into a column-keyed map. Byte slices are
// copied since drivers may reuse their buffers between rows.
func scanRow(rows *sql.Rows) (core.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	targets := make([]any, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, err
	}
	row := make(core.Row, len(columns))
	for i, col := range columns {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		row[col] = v
	}
	return row, nil
}

// Transaction runs fn inside a transaction: commit on nil return,
// rollback on error or panic. Nesting fails with ErrNestedTransaction.
func (d *Database) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	if d.tx != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w", core.ErrNestedTransaction)
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("begin transaction: %w", err)
	}
	d.tx = tx
	d.mu.Unlock()

	committed := false
	defer func() {
		d.mu.Lock()
		d.tx = nil
		d.mu.Unlock()
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// InTransaction reports whether a transaction is currently open.
func (d *Database) InTransaction() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx != nil
}

// rollbackOpen rolls back a transaction left open, if any. Used by the
// pool's release cleanup.
func (d *Database) rollbackOpen() error {
	d.mu.Lock()
	tx := d.tx
	d.tx = nil
	d.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// classify tags driver constraint violations with core.ErrConflict while
// keeping the original error reachable through errors.Is/As.
func (d *Database) classify(err error) error {
	if err == nil {
		return nil
	}
	if isIntegrityError(err) {
		return errors.Join(core.ErrConflict, err)
	}
	return err
}

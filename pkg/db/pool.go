package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relstore/relstore/pkg/core"
)

// Pool errors
var (
	// ErrPoolClosed is returned when acquiring from a closed pool
	ErrPoolClosed = errors.New("pool is closed")

	// ErrAcquireTimeout is returned when no connection frees up in time
	ErrAcquireTimeout = errors.New("pool acquire timed out")
)

// GuardMode selects what Release does with a connection whose
// transaction was left open.
type GuardMode string

const (
	// GuardRollback rolls the transaction back and reuses the
	// connection.
	GuardRollback GuardMode = "rollback"
	// GuardDiscard rolls back and, when that fails, drops the
	// connection from the pool instead of reusing it.
	GuardDiscard GuardMode = "discard"
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	// MaxSize bounds concurrently borrowed connections. Zero means the
	// default of 5.
	MaxSize int
	// AcquireTimeout bounds the wait for a free connection. Zero waits
	// until the context is done.
	AcquireTimeout time.Duration
	// Guard is the release cleanup policy.
	Guard GuardMode
	// Logger receives pool lifecycle debug output.
	Logger core.Logger
}

// DefaultPoolOptions returns the default pool configuration.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{MaxSize: 5, Guard: GuardRollback}
}

// Pool hands out single-connection Database adapters with a bounded
// outstanding count. Releasing runs the transaction guard before the
// connection goes back.
type Pool struct {
	sqldb   *sql.DB
	dialect core.Dialect
	opts    PoolOptions
	logger  core.Logger
	sem     chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPool builds a pool over an opened *sql.DB.
func NewPool(sqldb *sql.DB, dialect core.Dialect, opts PoolOptions) (*Pool, error) {
	if opts.MaxSize < 0 {
		return nil, fmt.Errorf("%w: pool size must not be negative, got %d", core.ErrConfig, opts.MaxSize)
	}
	if opts.MaxSize == 0 {
		opts.MaxSize = 5
	}
	if opts.Guard == "" {
		opts.Guard = GuardRollback
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger()
	}
	sqldb.SetMaxOpenConns(opts.MaxSize)
	return &Pool{
		sqldb:   sqldb,
		dialect: dialect,
		opts:    opts,
		logger:  opts.Logger,
		sem:     make(chan struct{}, opts.MaxSize),
	}, nil
}

// Acquire borrows a connection, waiting for a free slot. Closing the
// returned Database releases it back to the pool.
func (p *Pool) Acquire(ctx context.Context) (*Database, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	if p.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.AcquireTimeout)
		defer cancel()
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrAcquireTimeout
		}
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	conn, err := p.sqldb.Conn(ctx)
	if err != nil {
		<-p.sem
		return nil, err
	}
	d := NewWithConn(conn, p.dialect)
	d.SetLogger(p.logger)
	d.release = func() error {
		return p.release(d, conn)
	}
	p.logger.Debug("connection acquired")
	return d, nil
}

// release runs the transaction guard and returns the connection.
func (p *Pool) release(d *Database, conn *sql.Conn) error {
	defer func() { <-p.sem }()

	cleanupErr := d.rollbackOpen()
	if cleanupErr != nil {
		p.logger.Warn("release cleanup failed", "error", cleanupErr)
		if p.opts.Guard == GuardDiscard {
			// Poison the underlying connection so database/sql drops it
			// instead of recycling a dirty one.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}
	if err := conn.Close(); err != nil && !errors.Is(err, driver.ErrBadConn) && !errors.Is(err, sql.ErrConnDone) {
		return errors.Join(cleanupErr, err)
	}
	p.logger.Debug("connection released")
	return cleanupErr
}

// Close marks the pool closed and closes the underlying handle.
// Outstanding connections error on release.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.sqldb.Close()
}

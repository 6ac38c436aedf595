package db

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/pkg/core"
)

var memdbSeq atomic.Int64

// openTestDB opens a fresh named in-memory SQLite database. The single
// shared-cache connection keeps it alive for the test's duration.
func openTestDB(t *testing.T) *Database {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memdbSeq.Add(1))
	sqldb, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqldb.Close() })
	return New(sqldb, SQLiteDialect{})
}

type user struct {
	ID    int64    `db:"id,pk,auto"`
	Name  string   `db:"name"`
	Email string   `db:"email,unique"`
	Age   int      `db:"age"`
	Tags  []string `db:"tags,json"`
}

type post struct {
	ID     int64  `db:"id,pk,auto"`
	UserID int64  `db:"user_id" fk:"user.id"`
	Title  string `db:"title"`
}

// sharedOptions builds repository options with one registry, so relation
// inference sees both models.
func sharedOptions() core.RepositoryOptions {
	opts := core.DefaultRepositoryOptions()
	opts.Registry = core.NewRegistry()
	return opts
}

func newUserRepo(t *testing.T, d *Database, opts core.RepositoryOptions) *core.Repository[user] {
	t.Helper()
	repo, err := core.NewRepositoryWithOptions[user](d, opts)
	require.NoError(t, err)
	return repo
}

func newPostRepo(t *testing.T, d *Database, opts core.RepositoryOptions) *core.Repository[post] {
	t.Helper()
	repo, err := core.NewRepositoryWithOptions[post](d, opts)
	require.NoError(t, err)
	return repo
}

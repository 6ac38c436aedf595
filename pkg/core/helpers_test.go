package core

import (
	"context"
	"fmt"
)

// test dialects mirroring the three supported flavors without importing
// the driver-bound package.

type namedTestDialect struct{}

func (namedTestDialect) Name() string                          { return "sqlite" }
func (namedTestDialect) ParamStyle() ParamStyle                { return ParamStyleNamed }
func (namedTestDialect) Quote(ident string) string             { return `"` + ident + `"` }
func (namedTestDialect) Placeholder(key string, pos int) string { return ":" + key }
func (namedTestDialect) SupportsReturning() bool               { return true }
func (d namedTestDialect) ReturningClause(pk string) string    { return " RETURNING " + d.Quote(pk) }
func (d namedTestDialect) AutoPKSQL(pk string) string          { return d.Quote(pk) + " INTEGER PRIMARY KEY" }
func (namedTestDialect) DefaultValuesSQL() string              { return " DEFAULT VALUES" }

type ordinalTestDialect struct{}

func (ordinalTestDialect) Name() string           { return "postgres" }
func (ordinalTestDialect) ParamStyle() ParamStyle { return ParamStyleOrdinal }
func (ordinalTestDialect) Quote(ident string) string { return `"` + ident + `"` }
func (ordinalTestDialect) Placeholder(key string, pos int) string {
	return fmt.Sprintf("$%d", pos)
}
func (ordinalTestDialect) SupportsReturning() bool            { return true }
func (d ordinalTestDialect) ReturningClause(pk string) string { return " RETURNING " + d.Quote(pk) }
func (d ordinalTestDialect) AutoPKSQL(pk string) string {
	return d.Quote(pk) + " SERIAL PRIMARY KEY"
}
func (ordinalTestDialect) DefaultValuesSQL() string { return " DEFAULT VALUES" }

type qmarkTestDialect struct{}

func (qmarkTestDialect) Name() string                          { return "mysql" }
func (qmarkTestDialect) ParamStyle() ParamStyle                { return ParamStyleQMark }
func (qmarkTestDialect) Quote(ident string) string             { return "`" + ident + "`" }
func (qmarkTestDialect) Placeholder(key string, pos int) string { return "?" }
func (qmarkTestDialect) SupportsReturning() bool               { return false }
func (qmarkTestDialect) ReturningClause(pk string) string      { return "" }
func (d qmarkTestDialect) AutoPKSQL(pk string) string {
	return d.Quote(pk) + " INT AUTO_INCREMENT PRIMARY KEY"
}
func (qmarkTestDialect) DefaultValuesSQL() string { return " () VALUES ()" }

// stubResult is a canned write-statement result.
type stubResult struct {
	lastID   int64
	affected int64
}

func (r stubResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.affected, nil }

// spyDB records every statement and plays back scripted results, so
// tests can assert both SQL shapes and that precondition failures issue
// no SQL at all.
type spyDB struct {
	dialect Dialect

	statements []string
	params     []Params

	oneResults  []Row
	oneErrs     []error
	allResults  [][]Row
	allErrs     []error
	execResults []stubResult
	execErrs    []error

	transactions int
	rollbacks    int
}

func newSpyDB(dialect Dialect) *spyDB {
	return &spyDB{dialect: dialect}
}

func (s *spyDB) Dialect() Dialect { return s.dialect }

func (s *spyDB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.transactions++
	if err := fn(ctx); err != nil {
		s.rollbacks++
		return err
	}
	return nil
}

func (s *spyDB) Execute(ctx context.Context, query string, params Params) (Result, error) {
	s.statements = append(s.statements, query)
	s.params = append(s.params, params)
	var err error
	if len(s.execErrs) > 0 {
		err = s.execErrs[0]
		s.execErrs = s.execErrs[1:]
	}
	res := stubResult{}
	if len(s.execResults) > 0 {
		res = s.execResults[0]
		s.execResults = s.execResults[1:]
	}
	return res, err
}

func (s *spyDB) FetchOne(ctx context.Context, query string, params Params) (Row, error) {
	s.statements = append(s.statements, query)
	s.params = append(s.params, params)
	var err error
	if len(s.oneErrs) > 0 {
		err = s.oneErrs[0]
		s.oneErrs = s.oneErrs[1:]
	}
	var row Row
	if len(s.oneResults) > 0 {
		row = s.oneResults[0]
		s.oneResults = s.oneResults[1:]
	}
	return row, err
}

func (s *spyDB) FetchAll(ctx context.Context, query string, params Params) ([]Row, error) {
	s.statements = append(s.statements, query)
	s.params = append(s.params, params)
	var err error
	if len(s.allErrs) > 0 {
		err = s.allErrs[0]
		s.allErrs = s.allErrs[1:]
	}
	var rows []Row
	if len(s.allResults) > 0 {
		rows = s.allResults[0]
		s.allResults = s.allResults[1:]
	}
	return rows, err
}

// test models shared across the core tests.

type author struct {
	ID    int64  `db:"id,pk,auto"`
	Email string `db:"email,unique"`
	Name  string
}

type book struct {
	ID       int64  `db:"id,pk,auto"`
	AuthorID int64  `db:"author_id" fk:"author.id"`
	Title    string `db:"title"`
}

// spyRepoOptions disables auto schema so spy tests never see DDL.
func spyRepoOptions() RepositoryOptions {
	opts := DefaultRepositoryOptions()
	opts.AutoSchema = false
	opts.Registry = NewRegistry()
	return opts
}

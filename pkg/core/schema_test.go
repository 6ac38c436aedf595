package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableSQL(t *testing.T) {
	meta, err := buildMetadata(structTypeOf(t, book{}))
	require.NoError(t, err)

	got := CreateTableSQL(meta, namedTestDialect{}, true)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "book" (`+
			`"id" INTEGER PRIMARY KEY, `+
			`"author_id" INTEGER NOT NULL REFERENCES "author" ("id"), `+
			`"title" TEXT NOT NULL)`,
		got)

	got = CreateTableSQL(meta, qmarkTestDialect{}, false)
	assert.Equal(t,
		"CREATE TABLE `book` ("+
			"`id` INT AUTO_INCREMENT PRIMARY KEY, "+
			"`author_id` INTEGER NOT NULL REFERENCES `author` (`id`), "+
			"`title` TEXT NOT NULL)",
		got)
}

func TestSQLColumnTypes(t *testing.T) {
	meta, err := buildMetadata(structTypeOf(t, taggedModel{}))
	require.NoError(t, err)

	types := map[string]string{}
	for col, f := range meta.Fields {
		types[col] = sqlColumnType(f)
	}
	assert.Equal(t, map[string]string{
		"id":         "INTEGER",
		"email":      "TEXT",
		"nick":       "TEXT",
		"tags":       "TEXT", // json fields store as text
		"created_at": "TIMESTAMP",
		"author_id":  "INTEGER",
	}, types)
}

func TestCreateSchemaSQLIncludesIndexes(t *testing.T) {
	meta, err := buildMetadata(structTypeOf(t, taggedModel{}))
	require.NoError(t, err)

	statements, err := CreateSchemaSQL(meta, namedTestDialect{}, true)
	require.NoError(t, err)
	require.Len(t, statements, 3)
	assert.Contains(t, statements[0], "CREATE TABLE IF NOT EXISTS")
	assert.Equal(t,
		`CREATE UNIQUE INDEX IF NOT EXISTS "uidx_tagged_model_email" ON "tagged_model" ("email")`,
		statements[1])
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "idx_tagged_model_nick" ON "tagged_model" ("nick")`,
		statements[2])
}

func TestIndexNameOverride(t *testing.T) {
	type keyed struct {
		ID  int64  `db:"id,pk,auto"`
		Ref string `db:"ref,unique=by_ref"`
	}
	meta, err := buildMetadata(structTypeOf(t, keyed{}))
	require.NoError(t, err)

	specs, err := indexSpecs(meta)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "by_ref", indexName(meta, specs[0]))
}

func TestIndexSpecsRejectConflictingDuplicates(t *testing.T) {
	meta, err := buildMetadata(structTypeOf(t, conflictingIndexModel{}))
	require.NoError(t, err)

	_, err = indexSpecs(meta)
	require.ErrorIs(t, err, ErrConfig)
}

type conflictingIndexModel struct {
	ID int64  `db:"id,pk,auto"`
	A  string `db:"a,index=dup"`
	B  string `db:"b,unique=dup"`
}

func TestApplySchemaExecutesAllStatements(t *testing.T) {
	spy := newSpyDB(namedTestDialect{})
	meta, err := buildMetadata(structTypeOf(t, taggedModel{}))
	require.NoError(t, err)

	applied, err := ApplySchema(context.Background(), spy, meta, true)
	require.NoError(t, err)
	assert.Len(t, applied, 3)
	assert.Equal(t, applied, spy.statements)
	assert.Equal(t, 1, spy.transactions)
}

func TestEnsureSchemaCreatesMissingTable(t *testing.T) {
	spy := newSpyDB(namedTestDialect{})
	spy.allResults = [][]Row{{}} // PRAGMA table_info: no such table
	meta, err := buildMetadata(structTypeOf(t, author{}))
	require.NoError(t, err)

	applied, err := EnsureSchema(context.Background(), spy, meta, SchemaConflictRaise)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	assert.Contains(t, applied[0], `CREATE TABLE IF NOT EXISTS "author"`)
}

func TestEnsureSchemaNoChanges(t *testing.T) {
	spy := newSpyDB(namedTestDialect{})
	spy.allResults = [][]Row{
		{ // table_info
			{"name": "id", "type": "INTEGER"},
			{"name": "email", "type": "TEXT"},
			{"name": "name", "type": "TEXT"},
		},
		{ // index_list
			{"name": "uidx_author_email"},
		},
	}
	meta, err := buildMetadata(structTypeOf(t, author{}))
	require.NoError(t, err)

	applied, err := EnsureSchema(context.Background(), spy, meta, SchemaConflictRaise)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, 0, spy.transactions)
}

func TestEnsureSchemaAddsColumnAndIndex(t *testing.T) {
	spy := newSpyDB(namedTestDialect{})
	spy.allResults = [][]Row{
		{ // table_info: email column missing
			{"name": "id", "type": "INTEGER"},
			{"name": "name", "type": "TEXT"},
		},
		{}, // index_list: no indexes yet
	}
	meta, err := buildMetadata(structTypeOf(t, author{}))
	require.NoError(t, err)

	applied, err := EnsureSchema(context.Background(), spy, meta, SchemaConflictRaise)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, `ALTER TABLE "author" ADD COLUMN "email" TEXT`, applied[0])
	assert.Contains(t, applied[1], `CREATE UNIQUE INDEX IF NOT EXISTS "uidx_author_email"`)
}

func TestEnsureSchemaConflictRaises(t *testing.T) {
	spy := newSpyDB(namedTestDialect{})
	spy.allResults = [][]Row{
		{ // email was retyped out from under the model
			{"name": "id", "type": "INTEGER"},
			{"name": "email", "type": "INTEGER"},
			{"name": "name", "type": "TEXT"},
		},
	}
	meta, err := buildMetadata(structTypeOf(t, author{}))
	require.NoError(t, err)

	_, err = EnsureSchema(context.Background(), spy, meta, SchemaConflictRaise)
	require.ErrorIs(t, err, ErrSchemaConflict)
}

func TestEnsureSchemaConflictRecreates(t *testing.T) {
	spy := newSpyDB(namedTestDialect{})
	spy.allResults = [][]Row{
		{ // extra column the model does not know
			{"name": "id", "type": "INTEGER"},
			{"name": "email", "type": "TEXT"},
			{"name": "name", "type": "TEXT"},
			{"name": "legacy", "type": "TEXT"},
		},
	}
	meta, err := buildMetadata(structTypeOf(t, author{}))
	require.NoError(t, err)

	applied, err := EnsureSchema(context.Background(), spy, meta, SchemaConflictRecreate)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	assert.Equal(t, `DROP TABLE "author"`, applied[0])
	assert.Contains(t, applied[1], "CREATE TABLE IF NOT EXISTS")
}

func TestNormalizeSQLType(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"bigint", "INTEGER"},
		{"VARCHAR(255)", "TEXT"},
		{"character varying", "TEXT"},
		{"double precision", "REAL"},
		{"timestamp with time zone", "TIMESTAMP"},
		{"bytea", "BLOB"},
		{"bool", "BOOLEAN"},
		{"GEOMETRY", "GEOMETRY"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeSQLType(tt.in), "normalizeSQLType(%q)", tt.in)
	}
}

// Package relstore is a lightweight object-relational and vector-store
// mapping layer for Go.
//
// relstore maps plain structs onto relational tables through struct tags,
// compiles a small composable condition model into dialect-correct SQL
// (SQLite, PostgreSQL, MySQL), and layers repositories, relations,
// sessions and schema management on top. A separate vector repository
// applies the same normalization discipline (dimensions, ids, metrics,
// payload codecs) in front of pluggable vector backends.
//
// # Key Features
//
//   - Struct-tag metadata - `db:"col,pk,auto,unique,index,json"` plus
//     `fk:"table.column"`, resolved once per type and cached.
//   - Dialect-aware SQL compiler - named (:key), ordinal ($n) and
//     question-mark placeholders from one condition tree.
//   - Generic repositories - Insert/Get/List/Count/UpdateWhere/
//     GetOrCreate and friends over any tagged struct.
//   - Relations - belongs_to/has_many inferred from foreign keys,
//     transactional creates, batched IN eager loading.
//   - Schema management - DDL derivation, idempotent apply, additive
//     ensure with a conflict policy.
//   - Vector repository - metric aliases, id policies, tagged-JSON
//     payload codec, exact in-memory reference backend.
//   - 100% pure Go SQLite via modernc.org/sqlite (no CGO).
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/relstore/relstore"
//	    "github.com/relstore/relstore/pkg/core"
//	)
//
//	type User struct {
//	    ID    int64  `db:"id,pk,auto"`
//	    Email string `db:"email,unique"`
//	    Age   int    `db:"age"`
//	}
//
//	func main() {
//	    ctx := context.Background()
//
//	    database, _ := relstore.OpenSQLite("app.db")
//	    defer database.Close()
//
//	    users, _ := core.NewRepository[User](database)
//	    _ = users.Insert(ctx, &User{Email: "alice@example.com", Age: 34})
//
//	    adults, _ := users.List(ctx, core.Query{
//	        Where:   []core.Expr{core.Ge("age", 18)},
//	        OrderBy: []core.OrderBy{core.Asc("email")},
//	    })
//	    _ = adults
//	}
//
// # Sessions and Transactions
//
// A session gives every model one surface and scopes work in a
// transaction:
//
//	session := relstore.NewSession(database)
//	err := session.Begin(ctx, func(ctx context.Context) error {
//	    if err := session.Insert(ctx, &user); err != nil {
//	        return err // rolls back
//	    }
//	    return session.Insert(ctx, &post) // nil commits
//	})
//
// # Vector Storage
//
//	import "github.com/relstore/relstore/pkg/vector"
//
//	store := vector.NewInMemoryStore()
//	docs, _ := vector.NewRepository(ctx, store, "docs", 3, vector.DefaultOptions())
//	_ = docs.Upsert(ctx, []vector.Record{
//	    {ID: "a", Vector: []float32{0.1, 0.2, 0.3}, Payload: map[string]any{"lang": "go"}},
//	})
//	hits, _ := docs.Query(ctx, []float32{0.1, 0.2, 0.28}, 5, nil)
//	_ = hits
//
// # Observability
//
// All components accept a core.Logger; core.NewZerologLogger plugs in
// structured zerolog output.
package relstore

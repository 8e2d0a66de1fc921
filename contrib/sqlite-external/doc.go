// Package sqliteexternal registers the CGO SQLite driver for msakit.
//
// The catalog opens its database through core/sqlite, which selects a
// driver at build time. By default that is the pure Go modernc.org/sqlite.
// Building with the cgo_sqlite tag links this package instead, which
// registers github.com/mattn/go-sqlite3 under the name "sqlite3":
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/msakit
//
// The CGO driver is faster on large catalogs. The pure Go driver keeps the
// binary static and cross-compiles without a C toolchain.
package sqliteexternal

// Package sqliteexternal provides the optional CGO SQLite driver.
//
// To use github.com/mattn/go-sqlite3 for the template store, build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./...
//
// core/sqlite imports this package under that tag. The default build uses
// the pure Go modernc.org/sqlite driver and needs no C toolchain, which
// matters when liblegacybridge is cross-compiled.
package sqliteexternal

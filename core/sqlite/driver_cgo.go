//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3, selected by the cgo_sqlite build
// tag. The import lives in contrib/sqlite-external so the default build
// carries no CGO dependency.
package sqlite

import (
	_ "github.com/FocuswithJustin/LegacyBridge/contrib/sqlite-external" // CGO SQLite driver
)

const (
	driverName    = "sqlite3"
	driverType    = "cgo"
	driverPackage = "github.com/mattn/go-sqlite3 (via contrib/sqlite-external)"
)

//go:build !sqlite_cgo

package repository

// Pure Go SQLite, no C compiler required.
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

// SQLiteDriverName драйвер database/sql для SQLite
const SQLiteDriverName = "sqlite"

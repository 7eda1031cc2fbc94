//go:build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver, registers as "sqlite3"
)

// sqlDriverName is the database/sql driver name this build registers for
// the metadata store. CGO builds use mattn/go-sqlite3; see
// metadata_nocgo.go for the pure-Go alternative.
const sqlDriverName = "sqlite3"

// sqliteDSN builds the connection string for the mattn driver, which
// honors journal_mode/synchronous/busy_timeout query parameters directly.
func sqliteDSN(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

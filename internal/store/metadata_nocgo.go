//go:build !cgo

package store

import (
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite"
)

// sqlDriverName is the database/sql driver name this build registers for
// the metadata store. Non-CGO builds use modernc.org/sqlite; see
// metadata_cgo.go for the CGO alternative.
const sqlDriverName = "sqlite"

// sqliteDSN builds the connection string for the modernc driver. DSN query
// params may be ignored by this driver, so the explicit PRAGMA statements
// run by NewSQLiteMetadataStore are what actually take effect; the params are kept for parity
// with the cgo build and in case a future driver version honors them.
func sqliteDSN(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

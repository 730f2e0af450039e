// Package sqlitedb is the reference sqlengine.Engine adapter (spec §4.2),
// grounded on the teacher's internal/storage/sqlite package: plain
// database/sql against modernc.org/sqlite, WAL journal mode, and the same
// Open(path)/NewEngine(db) split so the engine can be wired onto either a
// file path or a connection the caller already owns.
package sqlitedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open opens (or creates) a SQLite database at path and enables WAL journal
// mode, mirroring the teacher's sqlite.Open.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private, connection-scoped in-memory database. The
// pool is limited to one connection, so the shared-cache DSN form is not
// needed; the database lives as long as the returned *sql.DB.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // :memory: is connection-private; a pool would see independent databases
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// alreadyRegistered reports whether err is modernc.org/sqlite's "function
// already registered" error, which RegisterScalarFunc treats as a
// successful no-op re-registration (§sqlengine.Engine's idempotency
// contract) since the driver does not support overwriting a UDF in place.
func alreadyRegistered(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already registered")
}

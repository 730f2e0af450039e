package factory

import (
	"fmt"

	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/sqlengine"
	"github.com/rvbbit/rvbbit/internal/sqlengine/sqlitedb"
)

// newSQLEngine builds the sqlengine.Engine selected by cfg.SQLEngine.
// Only sqlite has an adapter in this tree (sqlitedb, grounded on the
// teacher's internal/storage/sqlite); cfg.SQLEngine=="postgres" is
// accepted by config validation (a shared, externally-durable SQL engine
// is a reasonable deployment target) but has no implementation here, so
// it fails fast with a clear error rather than silently falling back to
// sqlite.
func newSQLEngine(cfg *config.Config) (sqlengine.Engine, error) {
	switch cfg.SQLEngine {
	case "sqlite":
		if cfg.SQLitePath == ":memory:" {
			return sqlitedb.NewMemory()
		}
		db, err := sqlitedb.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlitedb.New(db), nil
	case "postgres":
		return nil, fmt.Errorf("sql engine: postgres backend not implemented")
	default:
		return nil, fmt.Errorf("sql engine: unsupported SQL_ENGINE %q", cfg.SQLEngine)
	}
}

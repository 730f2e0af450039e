// Package sqlengine defines the in-process SQL engine surface (spec §1,
// §4.2): a host for registering scalar/table-valued UDFs and for executing
// queries against session-scoped temp tables. udfruntime registers its
// rvbbit/rvbbit_run/embed_batch functions through RegisterScalarFunc;
// cascade.Runner consumes Engine through the narrower RowSource/ResultWriter
// interfaces so for_each_row can be exercised against a fake in tests
// without a real database wired.
package sqlengine

import "context"

// ScalarFunc is a UDF callable from rewritten SQL: variadic arguments in,
// a single scalar result out. Implementations (udfruntime.Runtime) return
// the deterministic string "ERROR" rather than an error value, matching
// §4.12.1's requirement that UDF failures surface as ordinary result rows
// rather than aborting the statement.
type ScalarFunc func(ctx context.Context, args ...interface{}) (interface{}, error)

// Engine is the SQL surface a rewritten statement executes against: a
// session-scoped set of temp tables plus a registry of scalar UDFs.
// sqlitedb.Engine is the reference adapter; any database/sql-compatible
// driver can implement it the same way.
type Engine interface {
	// RegisterScalarFunc makes fn callable from SQL as name. Registration is
	// idempotent per (name, argc): re-registering the same name is not an
	// error, so udfruntime can re-wire UDFs without bookkeeping. The sqlitedb
	// adapter keeps the first function registered under a (name, argc).
	RegisterScalarFunc(name string, argc int, fn ScalarFunc) error

	// Exec runs a rewritten statement (DDL/DML or a query materialized into
	// rows) and returns the resulting rows as ordered maps keyed by column
	// name, in result order.
	Exec(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)

	// CreateTempTable materializes rows as a session-scoped temp table named
	// table, inferring column types from the first row. Used both to seed a
	// for_each_row source table and to register a MAP PARALLEL result set as
	// a queryable virtual table (§4.12.2).
	CreateTempTable(ctx context.Context, table string, rows []map[string]interface{}) error

	// Rows reads back every row of table in insertion order. Implements
	// cascade.RowSource.
	Rows(ctx context.Context, table string) ([]map[string]interface{}, error)

	// WriteRows appends rows to table, creating it (inferring columns from
	// the first row written) if it does not yet exist. Implements
	// cascade.ResultWriter.
	WriteRows(ctx context.Context, table string, rows []map[string]interface{}) error

	// Close releases the engine's underlying connection(s).
	Close() error
}

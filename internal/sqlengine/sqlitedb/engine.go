package sqlitedb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"modernc.org/sqlite"

	"github.com/rvbbit/rvbbit/internal/model"
	"github.com/rvbbit/rvbbit/internal/sqlengine"
)

// Engine is the sqlitedb-backed sqlengine.Engine: a single SQLite database
// shared by every cascade session of the process that built it, its tables
// created ad-hoc as for_each_row and MAP PARALLEL need them.
type Engine struct {
	db *sql.DB
}

var _ sqlengine.Engine = (*Engine)(nil)

// New wraps an already-open *sql.DB (e.g. from Open or OpenMemory).
func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// NewMemory opens a fresh private in-memory engine, used when SQLITE_PATH
// is ":memory:": tables live as long as the engine, nothing persists across
// process restarts.
func NewMemory() (*Engine, error) {
	db, err := OpenMemory()
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// RegisterScalarFunc registers fn as a SQL scalar function named name.
// modernc.org/sqlite's function registry is process-global and keyed by
// (name, argc); a duplicate registration error from a prior Engine
// instance registering the same UDF is treated as success, matching the
// interface's idempotency contract.
func (e *Engine) RegisterScalarFunc(name string, argc int, fn sqlengine.ScalarFunc) error {
	err := sqlite.RegisterScalarFunction(name, int32(argc), func(fctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		converted := make([]interface{}, len(args))
		for i, a := range args {
			converted[i] = a
		}
		result, ferr := fn(context.Background(), converted...)
		if ferr != nil {
			return "ERROR", nil
		}
		return toDriverValue(result), nil
	})
	if err != nil && !alreadyRegistered(err) {
		return model.NewToolError(name, err.Error())
	}
	return nil
}

// Exec runs sql and returns its result rows as ordered maps. Statements
// with no result set (DDL/DML) return an empty, non-nil slice.
func (e *Engine) Exec(ctx context.Context, sqlText string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		if _, execErr := e.db.ExecContext(ctx, sqlText, args...); execErr == nil {
			return []map[string]interface{}{}, nil
		}
		return nil, model.NewParseError("sql_exec", err.Error())
	}
	defer rows.Close()
	return scanRows(rows)
}

// CreateTempTable creates table (dropping any prior table of the same name)
// and inserts rows, inferring a TEXT/INTEGER/REAL/BLOB column set from the
// first row. Column order is the sorted key order of the first row, since
// Go map iteration order is not stable across rows.
func (e *Engine) CreateTempTable(ctx context.Context, table string, rows []map[string]interface{}) error {
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, table)); err != nil {
		return model.NewParseError("sql_temp_table", err.Error())
	}
	if len(rows) == 0 {
		_, err := e.db.ExecContext(ctx, fmt.Sprintf(`CREATE TEMP TABLE "%s" (_empty INTEGER)`, table))
		return err
	}
	cols := sortedColumns(rows[0])

	var ddl sb
	ddl.writef(`CREATE TEMP TABLE "%s" (`, table)
	for i, c := range cols {
		if i > 0 {
			ddl.write(", ")
		}
		ddl.writef(`"%s" %s`, c, sqliteType(rows[0][c]))
	}
	ddl.write(")")
	if _, err := e.db.ExecContext(ctx, ddl.String()); err != nil {
		return model.NewParseError("sql_temp_table", err.Error())
	}
	return e.insertRows(ctx, table, cols, rows)
}

// Rows reads back every row of table in rowid order.
func (e *Engine) Rows(ctx context.Context, table string) ([]map[string]interface{}, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s" ORDER BY rowid`, table))
	if err != nil {
		return nil, model.NewParseError("sql_rows", err.Error())
	}
	defer rows.Close()
	return scanRows(rows)
}

// WriteRows appends rows to table, creating it from the first row's shape
// if it does not exist yet.
func (e *Engine) WriteRows(ctx context.Context, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	exists, err := e.tableExists(ctx, table)
	if err != nil {
		return err
	}
	cols := sortedColumns(rows[0])
	if !exists {
		var ddl sb
		ddl.writef(`CREATE TEMP TABLE "%s" (`, table)
		for i, c := range cols {
			if i > 0 {
				ddl.write(", ")
			}
			ddl.writef(`"%s" %s`, c, sqliteType(rows[0][c]))
		}
		ddl.write(")")
		if _, derr := e.db.ExecContext(ctx, ddl.String()); derr != nil {
			return model.NewParseError("sql_result_table", derr.Error())
		}
	}
	return e.insertRows(ctx, table, cols, rows)
}

func (e *Engine) tableExists(ctx context.Context, table string) (bool, error) {
	row := e.db.QueryRowContext(ctx, `SELECT 1 FROM sqlite_temp_master WHERE type='table' AND name=?`, table)
	var one int
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, model.NewParseError("sql_result_table", err.Error())
	}
}

func (e *Engine) insertRows(ctx context.Context, table string, cols []string, rows []map[string]interface{}) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewParseError("sql_insert", err.Error())
	}

	var ins sb
	ins.writef(`INSERT INTO "%s" (`, table)
	for i, c := range cols {
		if i > 0 {
			ins.write(", ")
		}
		ins.writef(`"%s"`, c)
	}
	ins.write(") VALUES (")
	for i := range cols {
		if i > 0 {
			ins.write(", ")
		}
		ins.write("?")
	}
	ins.write(")")

	stmt, err := tx.PrepareContext(ctx, ins.String())
	if err != nil {
		tx.Rollback()
		return model.NewParseError("sql_insert", err.Error())
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]interface{}, len(cols))
		for i, c := range cols {
			args[i] = toDriverValue(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return model.NewParseError("sql_insert", err.Error())
		}
	}
	return tx.Commit()
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, model.NewParseError("sql_scan", err.Error())
	}
	out := []map[string]interface{}{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, model.NewParseError("sql_scan", err.Error())
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = fromDriverValue(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func sortedColumns(row map[string]interface{}) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func sqliteType(v interface{}) string {
	switch v.(type) {
	case int, int32, int64, bool:
		return "INTEGER"
	case float32, float64:
		return "REAL"
	case []byte:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// toDriverValue converts a Go value from a decoded row map into a
// database/sql-compatible argument, JSON-encoding maps/slices since SQLite
// has no native composite type.
func toDriverValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, int, int32, int64, float32, float64, bool, []byte, time.Time:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// fromDriverValue normalizes a driver-returned value (database/sql surfaces
// TEXT as string and INTEGER/REAL/BLOB as their Go equivalents already).
func fromDriverValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// sb is a tiny strings.Builder wrapper so DDL/DML assembly above reads as a
// sequence of writef calls instead of repeated fmt.Sprintf concatenation.
type sb struct{ buf []byte }

func (s *sb) write(text string) { s.buf = append(s.buf, text...) }
func (s *sb) writef(format string, args ...interface{}) {
	s.buf = append(s.buf, fmt.Sprintf(format, args...)...)
}
func (s *sb) String() string { return string(s.buf) }

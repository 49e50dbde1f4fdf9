// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Handle is one open connection to a backend: a bun DB wrapper, a single
// pinned connection taken from it and, while a transaction is running, the
// transaction. Handles are not safe for concurrent use.
type Handle struct {
	backend  string
	target   string
	database string

	bun  *bun.DB
	conn bun.Conn
	tx   *bun.Tx

	closed bool
}

// openHandle wraps sqlDB in bun and pins one connection. On failure sqlDB is
// closed before returning.
func openHandle(ctx context.Context, backend, target, database string, sqlDB *sql.DB, dialect schema.Dialect) (*Handle, error) {
	start := time.Now()
	bdb := bun.NewDB(sqlDB, dialect)
	conn, err := bdb.Conn(ctx)
	if err != nil {
		_ = bdb.Close()
		return nil, &ConnectionError{Backend: backend, Target: target, Err: err}
	}
	dbLogf("db: %s connected to %s in %s", backend, target, time.Since(start))
	return &Handle{
		backend:  backend,
		target:   target,
		database: database,
		bun:      bdb,
		conn:     conn,
	}, nil
}

// Backend returns the name of the backend that opened h.
func (h *Handle) Backend() string { return h.backend }

// Database returns the database h is bound to; empty for server-level handles.
func (h *Handle) Database() string { return h.database }

// Closed reports whether h has been disconnected or broken by a fatal error.
func (h *Handle) Closed() bool { return h == nil || h.closed }

// InTx reports whether a transaction is running on h.
func (h *Handle) InTx() bool { return h != nil && h.tx != nil }

// Begin starts a transaction on the pinned connection.
func (h *Handle) Begin(ctx context.Context) error {
	if h.Closed() {
		return ErrNotConnected
	}
	if h.tx != nil {
		return errors.New("transaction already active")
	}
	tx, err := h.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	h.tx = &tx
	return nil
}

// Commit commits the running transaction. Without one it is a no-op.
func (h *Handle) Commit() error {
	if h == nil || h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	return tx.Commit()
}

// Rollback aborts the running transaction. Without one it is a no-op.
func (h *Handle) Rollback() error {
	if h == nil || h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// close tears h down. Safe to call repeatedly.
func (h *Handle) close() error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	var errs []error
	if err := h.Rollback(); err != nil {
		errs = append(errs, fmt.Errorf("rollback on close: %w", err))
	}
	if err := h.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	if err := h.bun.Close(); err != nil {
		errs = append(errs, err)
	}
	dbLogf("db: %s disconnected from %s", h.backend, h.target)
	return errors.Join(errs...)
}

// sqlConn is the part of *sql.Conn and *sql.Tx statements run through.
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// native returns the database/sql connection or transaction under bun.
// Statements run on it unformatted and the driver binds the arguments.
func (h *Handle) native() sqlConn {
	if h.tx != nil {
		return h.tx.Tx
	}
	return h.conn.Conn
}

// rows runs a query and hands the open cursor to the caller.
func (h *Handle) rows(ctx context.Context, statement string, args []any) (*sql.Rows, error) {
	if h.Closed() {
		return nil, ErrNotConnected
	}
	start := time.Now()
	rows, err := h.native().QueryContext(ctx, statement, args...)
	h.logQuery(start, statement, err)
	return rows, err
}

func (h *Handle) logQuery(start time.Time, statement string, err error) {
	if !debugEnabled {
		return
	}
	if err != nil {
		dbLogf("db: %s query failed after %s: %s: %v", h.backend, time.Since(start), statement, err)
		return
	}
	dbLogf("db: %s query took %s: %s", h.backend, time.Since(start), statement)
}

// run executes statement and fills the Result variant selected by fetch.
func (h *Handle) run(ctx context.Context, statement string, args []any, fetch Fetch) (*Result, error) {
	if h.Closed() {
		return nil, ErrNotConnected
	}
	if fetch == FetchNone {
		start := time.Now()
		res, err := h.native().ExecContext(ctx, statement, args...)
		h.logQuery(start, statement, err)
		if err != nil {
			return nil, err
		}
		out := &Result{}
		// Drivers without support (pgx) report an error here; both mean zero.
		if n, err := res.RowsAffected(); err == nil {
			out.RowsAffected = n
		}
		if id, err := res.LastInsertId(); err == nil {
			out.LastInsertID = id
		}
		return out, nil
	}

	rows, err := h.rows(ctx, statement, args)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	limit := -1
	if fetch == FetchOne {
		limit = 1
	}
	cols, out, err := scanRows(rows, limit)
	if err != nil {
		return nil, err
	}
	return &Result{Columns: cols, Rows: out}, nil
}

// scanRows reads up to limit rows (all when limit < 0) into maps. Byte
// slices from non-binary columns are returned as strings and times in the
// text form the engine itself accepts.
func scanRows(rows *sql.Rows, limit int) ([]string, []Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	binary := make([]bool, len(cols))
	layouts := make([]string, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			binary[i] = isBinaryType(ct.DatabaseTypeName())
			layouts[i] = timeLayout(ct.DatabaseTypeName())
		}
	}

	out := []Row{}
	for (limit < 0 || len(out) < limit) && rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok && !binary[i] {
				row[c] = string(b)
				continue
			}
			if t, ok := vals[i].(time.Time); ok {
				row[c] = formatTime(t, layouts[i])
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.999999999"
	zonedLayout     = "2006-01-02 15:04:05.999999999-07:00"
)

// timeLayout picks the text form for time values of a column type. Zoned
// types keep their offset; everything else is written as local wall time.
func timeLayout(typeName string) string {
	n := strings.ToUpper(typeName)
	switch {
	case n == "DATE":
		return dateLayout
	case strings.HasSuffix(n, "TZ") || strings.Contains(n, "WITH TIME ZONE"):
		return zonedLayout
	}
	return timestampLayout
}

func formatTime(t time.Time, layout string) string {
	if layout == "" {
		layout = timestampLayout
	}
	return t.Format(layout)
}

func isBinaryType(name string) bool {
	n := strings.ToUpper(name)
	return strings.Contains(n, "BLOB") || strings.Contains(n, "BINARY") || n == "BYTEA"
}

// isBadConn reports driver-agnostic signs that a connection is unusable.
func isBadConn(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

// execute is the Execute implementation shared by all backends. Fatal errors
// close h and come back as *ConnectionError; everything else is a
// *QueryError carrying the translated native error.
func execute(ctx context.Context, backend string, fatal func(error) bool, translate func(error) error, h *Handle, statement string, args []any, fetch Fetch) (*Result, error) {
	if h.Closed() {
		return nil, &ConnectionError{Backend: backend, Err: ErrNotConnected}
	}
	res, err := h.run(ctx, statement, args, fetch)
	if err == nil {
		return res, nil
	}
	if fatal(err) {
		dbLogf("db: %s connection to %s lost: %v", backend, h.target, err)
		_ = h.close()
		return nil, &ConnectionError{Backend: backend, Target: h.target, Err: err}
	}
	return nil, &QueryError{Statement: statement, Args: args, Err: translate(err)}
}

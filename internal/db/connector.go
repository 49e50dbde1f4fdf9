// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Connector owns at most one connection to a Backend and offers generic CRUD
// on top of it. Statements are written with "%s" placeholders regardless of
// the backend. Mutating statements run in their own transaction, committed
// on success and rolled back once on failure.
//
// A Connector is not safe for concurrent use; share it through a worker.
type Connector struct {
	backend Backend
	handle  *Handle
}

// NewConnector returns a disconnected Connector for b.
func NewConnector(b Backend) *Connector {
	return &Connector{backend: b}
}

// Backend returns the wrapped backend.
func (c *Connector) Backend() Backend { return c.backend }

// Connected reports whether the connector holds a live connection.
func (c *Connector) Connected() bool {
	return c.handle != nil && !c.handle.Closed()
}

// Database returns the database the live connection is bound to, or the
// backend default when disconnected.
func (c *Connector) Database() string {
	if c.Connected() && c.handle.Database() != "" {
		return c.handle.Database()
	}
	return c.backend.Database()
}

// Connect opens the connection. An empty database selects the backend
// default. Connecting while connected is a no-op.
func (c *Connector) Connect(ctx context.Context, database string) error {
	if c.Connected() {
		return nil
	}
	h, err := c.backend.Connect(ctx, database)
	if err != nil {
		c.handle = nil
		return err
	}
	c.handle = h
	return nil
}

// Disconnect closes the connection. Calling it while disconnected is a no-op.
func (c *Connector) Disconnect() error {
	if c.handle == nil {
		return nil
	}
	h := c.handle
	c.handle = nil
	return c.backend.Disconnect(h)
}

// Session runs fn with a live connection. A connection opened by Session is
// closed when fn returns, whatever the outcome; an existing one is left open.
func (c *Connector) Session(ctx context.Context, fn func(*Connector) error) (err error) {
	if !c.Connected() {
		if err := c.Connect(ctx, ""); err != nil {
			return err
		}
		defer func() {
			if derr := c.Disconnect(); derr != nil {
				err = errors.Join(err, derr)
			}
		}()
	}
	return fn(c)
}

func (c *Connector) live() (*Handle, error) {
	if c.handle == nil || c.handle.Closed() {
		c.handle = nil
		return nil, &ConnectionError{Backend: c.backend.Name(), Err: ErrNotConnected}
	}
	return c.handle, nil
}

// Execute runs statement with params and returns the Result variant selected
// by fetch. Errors carry statement and params as passed in.
func (c *Connector) Execute(ctx context.Context, statement string, params []any, fetch Fetch) (*Result, error) {
	h, err := c.live()
	if err != nil {
		return nil, err
	}
	native := c.translate(statement)

	// Statements inside Transaction share the caller's transaction.
	if !IsMutating(statement) || h.InTx() {
		res, err := c.backend.Execute(ctx, h, native, params, fetch)
		if err != nil {
			return nil, c.queryError(err, statement, params, nil)
		}
		return res, nil
	}

	if err := h.Begin(ctx); err != nil {
		return nil, c.queryError(fmt.Errorf("begin transaction: %w", err), statement, params, nil)
	}
	res, err := c.backend.Execute(ctx, h, native, params, fetch)
	if err != nil {
		return nil, c.queryError(err, statement, params, h.Rollback())
	}
	if err := h.Commit(); err != nil {
		return nil, c.queryError(fmt.Errorf("commit: %w", err), statement, params, nil)
	}
	return res, nil
}

// backslashEscaper is implemented by backends whose quoted literals treat a
// backslash as an escape character.
type backslashEscaper interface {
	BackslashEscapes() bool
}

func (c *Connector) translate(statement string) string {
	if e, ok := c.backend.(backslashEscaper); ok && e.BackslashEscapes() {
		return TranslateBackslashPlaceholders(statement, c.backend.Placeholder())
	}
	return TranslatePlaceholders(statement, c.backend.Placeholder())
}

// queryError restates err against the caller's untranslated statement.
// Connection errors pass through unchanged.
func (c *Connector) queryError(err error, statement string, params []any, rollbackErr error) error {
	if IsConnectionError(err) {
		if rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}
		return err
	}
	native := err
	var qe *QueryError
	if errors.As(err, &qe) {
		native = qe.Err
	}
	return &QueryError{Statement: statement, Args: params, Err: native, RollbackErr: rollbackErr}
}

// Transaction runs fn inside one transaction: every statement fn executes
// through c is committed together, or rolled back together when fn fails.
func (c *Connector) Transaction(ctx context.Context, fn func(*Connector) error) error {
	h, err := c.live()
	if err != nil {
		return err
	}
	if h.InTx() {
		return fn(c)
	}
	if err := h.Begin(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(c); err != nil {
		if rbErr := h.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := h.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func (c *Connector) quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.backend.QuoteIdent(col)
	}
	return strings.Join(quoted, ", ")
}

// Insert adds row to table and returns the generated id. A zero id means the
// backend or statement does not report one, not an error.
func (c *Connector) Insert(ctx context.Context, table string, row Row) (int64, error) {
	if strings.TrimSpace(table) == "" {
		return 0, fmt.Errorf("insert: table name is required: %w", ErrInvalidArgument)
	}
	if len(row) == 0 {
		return 0, fmt.Errorf("insert into %s: row has no columns: %w", table, ErrInvalidArgument)
	}
	cols := sortedColumns(row)
	args := make([]any, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		args[i] = row[col]
		marks[i] = "%s"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.backend.QuoteIdent(table), c.quoteList(cols), strings.Join(marks, ", "))
	res, err := c.Execute(ctx, stmt, args, FetchNone)
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

func checkWhere(op, table, where string, whereParams []any) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("%s: table name is required: %w", op, ErrInvalidArgument)
	}
	if strings.TrimSpace(where) == "" {
		return fmt.Errorf("%s %s: where clause is required: %w", op, table, ErrInvalidArgument)
	}
	if n := CountPlaceholders(where); n != len(whereParams) {
		return fmt.Errorf("%s %s: where clause has %d placeholders but %d params: %w", op, table, n, len(whereParams), ErrInvalidArgument)
	}
	return nil
}

// Update sets the columns of row on every row of table matching where and
// returns how many rows matched. Zero is a normal outcome.
func (c *Connector) Update(ctx context.Context, table string, row Row, where string, whereParams []any) (int64, error) {
	if err := checkWhere("update", table, where, whereParams); err != nil {
		return 0, err
	}
	if len(row) == 0 {
		return 0, fmt.Errorf("update %s: row has no columns: %w", table, ErrInvalidArgument)
	}
	cols := sortedColumns(row)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(whereParams))
	for i, col := range cols {
		sets[i] = c.backend.QuoteIdent(col) + " = %s"
		args = append(args, row[col])
	}
	args = append(args, whereParams...)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", c.backend.QuoteIdent(table), strings.Join(sets, ", "), where)
	res, err := c.Execute(ctx, stmt, args, FetchNone)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Delete removes every row of table matching where and returns the count.
func (c *Connector) Delete(ctx context.Context, table, where string, whereParams []any) (int64, error) {
	if err := checkWhere("delete", table, where, whereParams); err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", c.backend.QuoteIdent(table), where)
	res, err := c.Execute(ctx, stmt, whereParams, FetchNone)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Select runs a SELECT and returns its rows; FetchOne yields at most one.
func (c *Connector) Select(ctx context.Context, statement string, params []any, fetch Fetch) ([]Row, error) {
	if fetch != FetchOne && fetch != FetchAll {
		return nil, fmt.Errorf("select: fetch mode %s: %w", fetch, ErrInvalidArgument)
	}
	if !IsSelect(statement) {
		return nil, fmt.Errorf("select %q: %w", statement, ErrNotSelect)
	}
	res, err := c.Execute(ctx, statement, params, fetch)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// SelectOne returns the first row of a SELECT, or nil when there is none.
func (c *Connector) SelectOne(ctx context.Context, statement string, params ...any) (Row, error) {
	rows, err := c.Select(ctx, statement, params, FetchOne)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// SelectAll returns every row of table.
func (c *Connector) SelectAll(ctx context.Context, table string) ([]Row, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("select all: table name is required: %w", ErrInvalidArgument)
	}
	return c.Select(ctx, "SELECT * FROM "+c.backend.QuoteIdent(table), nil, FetchAll)
}

// Cursor runs a query and hands the open rows to fn. The rows are closed
// when fn returns; fn must not keep them.
func (c *Connector) Cursor(ctx context.Context, statement string, params []any, fn func(*sql.Rows) error) error {
	h, err := c.live()
	if err != nil {
		return err
	}
	rows, err := h.rows(ctx, c.translate(statement), params)
	if err != nil {
		if isBadConn(err) {
			_ = h.close()
			return &ConnectionError{Backend: c.backend.Name(), Target: h.target, Err: err}
		}
		return &QueryError{Statement: statement, Args: params, Err: err}
	}
	defer func() { _ = rows.Close() }()
	if err := fn(rows); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return &QueryError{Statement: statement, Args: params, Err: err}
	}
	return nil
}

// Tables lists the tables of the connected database.
func (c *Connector) Tables(ctx context.Context) ([]string, error) {
	h, err := c.live()
	if err != nil {
		return nil, err
	}
	return c.backend.Tables(ctx, h)
}

// Exists reports whether the named database exists. It does not need or
// use the connector's connection.
func (c *Connector) Exists(ctx context.Context, name string) (bool, error) {
	return c.backend.Exists(ctx, name)
}

// Create creates the named database if it is missing.
func (c *Connector) Create(ctx context.Context, name string) error {
	return c.backend.Create(ctx, name)
}

// Maintain runs the backend's maintenance routine, if it has one, on the
// live connection.
func (c *Connector) Maintain(ctx context.Context) error {
	h, err := c.live()
	if err != nil {
		return err
	}
	m, ok := c.backend.(Maintainer)
	if !ok {
		return fmt.Errorf("%s: maintenance not supported", c.backend.Name())
	}
	if h.InTx() {
		return fmt.Errorf("%s: maintenance cannot run inside a transaction", c.backend.Name())
	}
	return m.Maintain(ctx, h)
}

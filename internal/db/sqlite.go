// Copyright (c) 2025 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/uptrace/bun/dialect/sqlitedialect"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteBusyTimeoutMS = 5000

// SQLiteBackend is the embedded single-file backend. Its "database" is a
// filesystem path, ":memory:", or a "file:" URI.
type SQLiteBackend struct {
	params Params
}

// NewSQLiteBackend validates p and returns a backend for the file at p.Path.
// available is the result of the start-up driver probe.
func NewSQLiteBackend(p Params, available bool) (*SQLiteBackend, error) {
	if !available {
		return nil, fmt.Errorf("sqlite: %w", ErrDriverUnavailable)
	}
	if strings.TrimSpace(p.Path) == "" {
		return nil, fmt.Errorf("sqlite: path is required: %w", ErrInvalidParams)
	}
	return &SQLiteBackend{params: p.clone()}, nil
}

func (b *SQLiteBackend) Name() string                  { return "sqlite" }
func (b *SQLiteBackend) Database() string              { return b.params.Path }
func (b *SQLiteBackend) Placeholder() PlaceholderStyle { return PlaceholderQuestion }
func (b *SQLiteBackend) QuoteIdent(name string) string { return quoteIdent(name, '"') }

// sqliteFile returns the filesystem path behind name, or false for
// in-memory databases.
func sqliteFile(name string) (string, bool) {
	if name == ":memory:" {
		return "", false
	}
	if rest, ok := strings.CutPrefix(name, "file:"); ok {
		path, query, _ := strings.Cut(rest, "?")
		if path == ":memory:" || strings.Contains(query, "mode=memory") {
			return "", false
		}
		return path, path != ""
	}
	return name, true
}

func (b *SQLiteBackend) dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, sep, sqliteBusyTimeoutMS)
}

// Connect opens path (the configured one when empty), creating missing
// parent directories, and verifies the file with a read-only probe.
func (b *SQLiteBackend) Connect(ctx context.Context, path string) (*Handle, error) {
	if path == "" {
		path = b.params.Path
	}
	if file, ok := sqliteFile(path); ok {
		if dir := filepath.Dir(file); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, &ConnectionError{Backend: b.Name(), Target: path, Err: err}
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", b.dsn(path))
	if err != nil {
		return nil, &ConnectionError{Backend: b.Name(), Target: path, Err: err}
	}
	// One file, one writer: a single pooled connection also keeps
	// ":memory:" databases visible across statements.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	h, err := openHandle(ctx, b.Name(), path, path, sqlDB, sqlitedialect.New())
	if err != nil {
		return nil, err
	}
	if _, err := h.run(ctx, "SELECT COUNT(*) FROM sqlite_master", nil, FetchOne); err != nil {
		_ = h.close()
		return nil, &ConnectionError{Backend: b.Name(), Target: path, Err: fmt.Errorf("integrity probe failed: %w", err)}
	}
	return h, nil
}

func (b *SQLiteBackend) Disconnect(h *Handle) error {
	return h.close()
}

func (b *SQLiteBackend) Execute(ctx context.Context, h *Handle, statement string, args []any, fetch Fetch) (*Result, error) {
	return execute(ctx, b.Name(), b.fatal, b.translate, h, statement, args, fetch)
}

// Exists is a filesystem check. In-memory databases always exist.
func (b *SQLiteBackend) Exists(_ context.Context, name string) (bool, error) {
	if name == "" {
		name = b.params.Path
	}
	file, ok := sqliteFile(name)
	if !ok {
		return true, nil
	}
	_, err := os.Stat(file)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Create opens name once, which creates the file, and checks that it is
// writable by creating and dropping a scratch table.
func (b *SQLiteBackend) Create(ctx context.Context, name string) error {
	h, err := b.Connect(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = b.Disconnect(h) }()

	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS _dbbridge_write_probe (id INTEGER)",
		"DROP TABLE _dbbridge_write_probe",
	} {
		if _, err := b.Execute(ctx, h, stmt, nil, FetchNone); err != nil {
			return err
		}
	}
	return nil
}

func (b *SQLiteBackend) Tables(ctx context.Context, h *Handle) ([]string, error) {
	res, err := b.Execute(ctx, h, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name", nil, FetchAll)
	if err != nil {
		return nil, err
	}
	return columnStrings(res, "name"), nil
}

func (b *SQLiteBackend) NativeError(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se)
}

func (b *SQLiteBackend) translate(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
	}
	return err
}

func (b *SQLiteBackend) fatal(err error) bool {
	if isBadConn(err) {
		return true
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_CANTOPEN:
		return true
	}
	return false
}

// columnStrings collects column col of every row as strings.
func columnStrings(res *Result, col string) []string {
	out := make([]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		switch v := r[col].(type) {
		case string:
			out = append(out, v)
		case []byte:
			out = append(out, string(v))
		case nil:
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

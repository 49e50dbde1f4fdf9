// Copyright (c) 2025 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"path/filepath"
	"testing"
)

// newTestSQLite returns a SQLite backend for a fresh file in t's temp dir.
func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(Params{Path: filepath.Join(t.TempDir(), "test.db")}, true)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	return b
}

// WithTestConnector connects a Connector to a fresh SQLite file for the
// duration of fn and disconnects afterwards.
func WithTestConnector(t *testing.T, fn func(ctx context.Context, c *Connector)) {
	t.Helper()
	ctx := context.Background()
	c := NewConnector(newTestSQLite(t))
	if err := c.Connect(ctx, ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() {
		if err := c.Disconnect(); err != nil {
			t.Errorf("Disconnect failed: %v", err)
		}
	}()
	fn(ctx, c)
}

// mustExec runs statement or fails the test.
func mustExec(t *testing.T, ctx context.Context, c *Connector, statement string, params ...any) *Result {
	t.Helper()
	res, err := c.Execute(ctx, statement, params, FetchNone)
	if err != nil {
		t.Fatalf("Execute(%q) failed: %v", statement, err)
	}
	return res
}

// recordingBackend counts the statements that reach the wrapped backend.
type recordingBackend struct {
	*SQLiteBackend
	statements []string
}

func (r *recordingBackend) Execute(ctx context.Context, h *Handle, statement string, args []any, fetch Fetch) (*Result, error) {
	r.statements = append(r.statements, statement)
	return r.SQLiteBackend.Execute(ctx, h, statement, args, fetch)
}

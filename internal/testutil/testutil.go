// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds backends shared by tests outside internal/db.
package testutil

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/toeirei/dbbridge/internal/db"
)

// SQLiteBackend returns a backend for a fresh file in t's temp dir.
func SQLiteBackend(t testing.TB) *db.SQLiteBackend {
	t.Helper()
	b, err := db.NewSQLiteBackend(db.Params{Path: filepath.Join(t.TempDir(), "test.db")}, true)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	return b
}

// CountingBackend wraps a SQLite backend and counts connection lifecycle
// calls so tests can assert on them.
type CountingBackend struct {
	*db.SQLiteBackend
	connects    atomic.Int32
	disconnects atomic.Int32
}

// NewCountingBackend wraps a fresh SQLiteBackend.
func NewCountingBackend(t testing.TB) *CountingBackend {
	t.Helper()
	return &CountingBackend{SQLiteBackend: SQLiteBackend(t)}
}

func (c *CountingBackend) Connect(ctx context.Context, database string) (*db.Handle, error) {
	c.connects.Add(1)
	return c.SQLiteBackend.Connect(ctx, database)
}

func (c *CountingBackend) Disconnect(h *db.Handle) error {
	c.disconnects.Add(1)
	return c.SQLiteBackend.Disconnect(h)
}

// Connects returns how often Connect was called.
func (c *CountingBackend) Connects() int { return int(c.connects.Load()) }

// Disconnects returns how often Disconnect was called.
func (c *CountingBackend) Disconnects() int { return int(c.disconnects.Load()) }

package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Cross-backend integration checks. The client/server variants run only when
// the corresponding DSN environment variable is set. They are skipped by
// default to keep local developer test runs fast.
func TestCrossBackend_SQLite(t *testing.T) {
	b, err := New("sqlite", Params{Path: filepath.Join(t.TempDir(), "cross.db")}, ProbeDrivers())
	if err != nil {
		t.Fatalf("sqlite New failed: %v", err)
	}
	runBackendSuite(t, b, "INTEGER PRIMARY KEY AUTOINCREMENT")
}

func TestCrossBackend_Postgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set; skipping Postgres integration test")
	}
	p, err := ParamsFromDSN("postgres", dsn)
	if err != nil {
		t.Fatalf("postgres params: %v", err)
	}
	b, err := New("postgres", p, ProbeDrivers())
	if err != nil {
		t.Fatalf("postgres New failed: %v", err)
	}
	runBackendSuite(t, b, "SERIAL PRIMARY KEY")
}

func TestCrossBackend_MySQL(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set; skipping MySQL integration test")
	}
	p, err := ParamsFromDSN("mysql", dsn)
	if err != nil {
		t.Fatalf("mysql params: %v", err)
	}
	b, err := New("mysql", p, ProbeDrivers())
	if err != nil {
		t.Fatalf("mysql New failed: %v", err)
	}
	runBackendSuite(t, b, "INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT")
}

// runBackendSuite exercises the Connector contract against b using a scratch
// table that is dropped afterwards.
func runBackendSuite(t *testing.T, b Backend, idColumn string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := b.Create(ctx, b.Database()); err != nil {
		t.Fatalf("Create(%s) failed: %v", b.Database(), err)
	}
	if ok, err := b.Exists(ctx, b.Database()); err != nil || !ok {
		t.Fatalf("Exists(%s) = %v, %v; want true", b.Database(), ok, err)
	}

	m := NewExportManager(b)
	if err := m.Connect(ctx, ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() {
		if err := m.Disconnect(); err != nil {
			t.Errorf("Disconnect failed: %v", err)
		}
		if err := m.Disconnect(); err != nil {
			t.Errorf("second Disconnect failed: %v", err)
		}
	}()

	table := fmt.Sprintf("dbbridge_it_%d", time.Now().UnixNano())
	qt := b.QuoteIdent(table)
	mustExec(t, ctx, m.Connector, fmt.Sprintf("CREATE TABLE %s (id %s, name VARCHAR(64) UNIQUE, age INTEGER)", qt, idColumn))
	defer func() { _, _ = m.Execute(context.Background(), "DROP TABLE "+qt, nil, FetchNone) }()

	if _, err := m.Insert(ctx, table, Row{"name": "Max", "age": 30}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := m.Insert(ctx, table, Row{"name": "Max", "age": 35}); !errors.Is(err, ErrDuplicate) || !IsQueryError(err) {
		t.Fatalf("expected duplicate QueryError, got %v", err)
	}
	rows, err := m.SelectAll(ctx, table)
	if err != nil || len(rows) != 1 {
		t.Fatalf("SelectAll = %v, %v; want one row", rows, err)
	}
	if fmt.Sprint(rows[0]["name"]) != "Max" || fmt.Sprint(rows[0]["age"]) != "30" {
		t.Fatalf("unexpected row: %v", rows[0])
	}

	if n, err := m.Update(ctx, table, Row{"age": 1}, "name = %s", []any{"nobody"}); err != nil || n != 0 {
		t.Fatalf("Update no match = %d, %v", n, err)
	}
	if n, err := m.Update(ctx, table, Row{"age": 31}, "name = %s", []any{"Max"}); err != nil || n != 1 {
		t.Fatalf("Update = %d, %v", n, err)
	}

	tables, err := m.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	found := false
	for _, name := range tables {
		found = found || name == table
	}
	if !found {
		t.Fatalf("Tables() = %v; missing %s", tables, table)
	}

	doc, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if _, err := m.Delete(ctx, table, "name = %s", []any{"Max"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	only := &Document{Version: doc.Version, Database: doc.Database, Tables: []TableData{*doc.Table(table)}}
	if err := m.Restore(ctx, only); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	rows, err = m.SelectAll(ctx, table)
	if err != nil || len(rows) != 1 || fmt.Sprint(rows[0]["age"]) != "31" {
		t.Fatalf("after restore = %v, %v", rows, err)
	}
}

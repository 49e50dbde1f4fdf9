// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func newTestExportManager(t *testing.T) (context.Context, *ExportManager) {
	t.Helper()
	ctx := context.Background()
	m := NewExportManager(newTestSQLite(t))
	if err := m.Connect(ctx, ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Disconnect() })
	return ctx, m
}

func seedExportFixture(t *testing.T, ctx context.Context, m *ExportManager) {
	t.Helper()
	mustExec(t, ctx, m.Connector, createPeople)
	mustExec(t, ctx, m.Connector, "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT, score REAL)")
	mustExec(t, ctx, m.Connector, "CREATE TABLE empty_one (id INTEGER PRIMARY KEY)")
	for _, r := range []Row{{"name": "Max", "age": 30}, {"name": "Ada", "age": 36}} {
		if _, err := m.Insert(ctx, "people", r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if _, err := m.Insert(ctx, "notes", Row{"body": "hello %s", "score": 0.5}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}

// tableContent renders every row of table as sorted strings for order-free
// comparison.
func tableContent(t *testing.T, ctx context.Context, c *Connector, table string) []string {
	t.Helper()
	rows, err := c.SelectAll(ctx, table)
	if err != nil {
		t.Fatalf("SelectAll(%s) failed: %v", table, err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		cols := sortedColumns(r)
		parts := make([]string, len(cols))
		for i, col := range cols {
			parts[i] = fmt.Sprintf("%s=%v", col, r[col])
		}
		out = append(out, strings.Join(parts, ","))
	}
	sort.Strings(out)
	return out
}

func TestExportImport_PopulatedRoundTrip(t *testing.T) {
	ctx, m := newTestExportManager(t)
	seedExportFixture(t, ctx, m)

	before := map[string][]string{}
	for _, tbl := range []string{"people", "notes", "empty_one"} {
		before[tbl] = tableContent(t, ctx, m.Connector, tbl)
	}

	path := filepath.Join(t.TempDir(), "out", "export.json")
	if err := m.Export(ctx, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Diverge from the snapshot, then restore it.
	if _, err := m.Delete(ctx, "people", "name = %s", []any{"Max"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Insert(ctx, "people", Row{"name": "Intruder", "age": 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := m.Insert(ctx, "empty_one", Row{"id": 7}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := m.Import(ctx, path); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	for tbl, want := range before {
		got := tableContent(t, ctx, m.Connector, tbl)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Fatalf("table %s after import = %v; want %v", tbl, got, want)
		}
	}
}

func TestExportImport_EmptyDatabase(t *testing.T) {
	ctx, m := newTestExportManager(t)
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := m.Export(ctx, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if len(doc.Tables) != 0 {
		t.Fatalf("expected no table records, got %d", len(doc.Tables))
	}
	if err := m.Import(ctx, path); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	tables, err := m.Tables(ctx)
	if err != nil || len(tables) != 0 {
		t.Fatalf("expected database to stay empty, got %v, %v", tables, err)
	}
}

func TestExport_DocumentShape(t *testing.T) {
	ctx, m := newTestExportManager(t)
	seedExportFixture(t, ctx, m)
	m.Comment = "nightly"
	path := filepath.Join(t.TempDir(), "shape.json")
	if err := m.Export(ctx, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header + database + 3 tables, got %d records", len(records))
	}
	if records[0]["type"] != "header" || records[0]["version"] != DocumentVersion || records[0]["comment"] != "nightly" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1]["type"] != "database" || records[1]["name"] != m.Database() {
		t.Fatalf("unexpected database record: %v", records[1])
	}
	for _, rec := range records[2:] {
		if rec["type"] != "table" || rec["database"] != m.Database() {
			t.Fatalf("unexpected table record: %v", rec)
		}
		data, ok := rec["data"].([]any)
		if !ok {
			t.Fatalf("table record %v must always carry a data array", rec["name"])
		}
		if rec["name"] == "empty_one" && len(data) != 0 {
			t.Fatalf("expected empty data for empty_one, got %v", data)
		}
	}
}

func TestExport_ZstdRoundTrip(t *testing.T) {
	ctx, m := newTestExportManager(t)
	seedExportFixture(t, ctx, m)
	path := filepath.Join(t.TempDir(), "backup.json.zst")
	if err := m.Export(ctx, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		t.Fatalf("expected zstd frame magic, got % x", raw[:4])
	}
	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	people := doc.Table("people")
	if people == nil || len(people.Rows) != 2 {
		t.Fatalf("unexpected people table: %+v", people)
	}
	if people.Rows[0]["age"] != int64(30) {
		t.Fatalf("expected integral numbers to decode as int64, got %T", people.Rows[0]["age"])
	}
	if notes := doc.Table("notes"); notes == nil || notes.Rows[0]["score"] != 0.5 {
		t.Fatalf("expected float score, got %+v", notes)
	}
}

func TestTransform_RenameTable(t *testing.T) {
	ctx, m := newTestExportManager(t)
	seedExportFixture(t, ctx, m)
	path := filepath.Join(t.TempDir(), "t.json")
	if err := m.Export(ctx, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if err := m.Transform(path, RenameTable("people", "persons")); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if doc.Table("people") != nil || doc.Table("persons") == nil {
		t.Fatalf("expected people to be renamed to persons")
	}

	before, _ := os.ReadFile(path)
	boom := errors.New("boom")
	err = m.Transform(path, func(d Document) (Document, error) { return d, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Fatalf("failed transform must leave the file untouched")
	}
	if err := m.Transform(path, RenameTable("ghost", "x")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for unknown table, got %v", err)
	}
}

func TestReadDocument_Validation(t *testing.T) {
	cases := map[string]string{
		"not an array":         `{"type":"header"}`,
		"too short":            `[{"type":"header","version":"1","comment":""}]`,
		"database first":       `[{"type":"database","name":"x"},{"type":"header"}]`,
		"second header":        `[{"type":"header"},{"type":"database","name":"x"},{"type":"header"}]`,
		"table without name":   `[{"type":"header"},{"type":"database","name":"x"},{"type":"table","data":[]}]`,
		"row is not an object": `[{"type":"header"},{"type":"database","name":"x"},{"type":"table","name":"t","data":[1]}]`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadDocument(strings.NewReader(in)); !errors.Is(err, ErrInvalidDocument) {
				t.Fatalf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}

	doc, err := ReadDocument(strings.NewReader(`[{"type":"header","version":"1","comment":"c"},{"type":"database","name":"db"},{"type":"table","name":"t","database":"db","data":[{"n":3,"f":1.5,"s":"x","z":null}]}]`))
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	row := doc.Tables[0].Rows[0]
	if row["n"] != int64(3) || row["f"] != 1.5 || row["s"] != "x" || row["z"] != nil {
		t.Fatalf("unexpected decoded row: %#v", row)
	}
}

func TestMigrate_CopiesBetweenDatabases(t *testing.T) {
	ctx, src := newTestExportManager(t)
	seedExportFixture(t, ctx, src)
	_, dst := newTestExportManager(t)
	mustExec(t, ctx, dst.Connector, createPeople)
	mustExec(t, ctx, dst.Connector, "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT, score REAL)")
	mustExec(t, ctx, dst.Connector, "CREATE TABLE empty_one (id INTEGER PRIMARY KEY)")

	if err := Migrate(ctx, src, dst); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	for _, tbl := range []string{"people", "notes"} {
		want := tableContent(t, ctx, src.Connector, tbl)
		got := tableContent(t, ctx, dst.Connector, tbl)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Fatalf("table %s = %v; want %v", tbl, got, want)
		}
	}
}

func TestExportImport_KeepsDateTimeText(t *testing.T) {
	ctx, m := newTestExportManager(t)
	mustExec(t, ctx, m.Connector, "CREATE TABLE events (id INTEGER PRIMARY KEY, at DATETIME, day DATE)")
	mustExec(t, ctx, m.Connector, "INSERT INTO events (id, at, day) VALUES (1, '2024-01-02 03:04:05', '2024-01-02')")
	mustExec(t, ctx, m.Connector, "INSERT INTO events (id, at, day) VALUES (2, '2024-01-02 03:04:05.25', NULL)")

	path := filepath.Join(t.TempDir(), "events.json")
	if err := m.Export(ctx, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if got := doc.Table("events").Rows[0]["at"]; got != "2024-01-02 03:04:05" {
		t.Fatalf("exported at = %#v", got)
	}

	mustExec(t, ctx, m.Connector, "DELETE FROM events")
	if err := m.Import(ctx, path); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	rows, err := m.Select(ctx, "SELECT CAST(at AS TEXT) AS at, CAST(day AS TEXT) AS day FROM events ORDER BY id", nil, FetchAll)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", rows)
	}
	if rows[0]["at"] != "2024-01-02 03:04:05" || rows[0]["day"] != "2024-01-02" {
		t.Fatalf("stored text changed: %v", rows[0])
	}
	if rows[1]["at"] != "2024-01-02 03:04:05.25" || rows[1]["day"] != nil {
		t.Fatalf("stored text changed: %v", rows[1])
	}
}

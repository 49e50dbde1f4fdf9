// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/toeirei/dbbridge/buildvars"
)

// TransformFunc rewrites a document. It must not touch the database.
type TransformFunc func(Document) (Document, error)

// ExportManager adds whole-database export and import to a Connector.
type ExportManager struct {
	*Connector

	// Comment is written into exported headers. Empty selects a default
	// naming the tool version.
	Comment string
}

// NewExportManager returns a disconnected ExportManager for b.
func NewExportManager(b Backend) *ExportManager {
	return &ExportManager{Connector: NewConnector(b)}
}

func (m *ExportManager) comment() string {
	if m.Comment != "" {
		return m.Comment
	}
	return "dbbridge " + buildvars.VersionOrDefault("dev") + " " + m.Backend().Name() + " export"
}

// Snapshot reads every row of every table into a Document.
func (m *ExportManager) Snapshot(ctx context.Context) (*Document, error) {
	tables, err := m.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	database := m.Database()
	doc := &Document{
		Version:  DocumentVersion,
		Comment:  m.comment(),
		Database: database,
		Tables:   make([]TableData, 0, len(tables)),
	}
	for _, name := range tables {
		rows, err := m.SelectAll(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", name, err)
		}
		doc.Tables = append(doc.Tables, TableData{Name: name, Database: database, Rows: rows})
	}
	return doc, nil
}

// Export writes a snapshot of the connected database to destination.
func (m *ExportManager) Export(ctx context.Context, destination string) error {
	start := time.Now()
	doc, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := SaveDocument(destination, doc); err != nil {
		return err
	}
	dbLogf("db: exported %d tables to %s in %s", len(doc.Tables), destination, time.Since(start))
	return nil
}

// Restore replaces the content of every table named in doc: all existing
// rows are deleted, then the document rows are inserted in order. Each
// statement commits on its own, so a failure part way through leaves the
// current table partially restored.
func (m *ExportManager) Restore(ctx context.Context, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("restore: %w", ErrInvalidDocument)
	}
	for _, t := range doc.Tables {
		stmt := "DELETE FROM " + m.Backend().QuoteIdent(t.Name)
		if _, err := m.Execute(ctx, stmt, nil, FetchNone); err != nil {
			return fmt.Errorf("clear table %s: %w", t.Name, err)
		}
		for i, row := range t.Rows {
			if _, err := m.Insert(ctx, t.Name, row); err != nil {
				return fmt.Errorf("restore table %s row %d: %w", t.Name, i, err)
			}
		}
		dbLogf("db: restored %d rows into %s", len(t.Rows), t.Name)
	}
	return nil
}

// Import reads the document at source and restores it.
func (m *ExportManager) Import(ctx context.Context, source string) error {
	doc, err := LoadDocument(source)
	if err != nil {
		return err
	}
	return m.Restore(ctx, doc)
}

// Transform loads the document at source, applies fn and writes the result
// back to source. The database is not involved.
func (m *ExportManager) Transform(source string, fn TransformFunc) error {
	return TransformFile(source, fn)
}

// TransformFile applies fn to the document stored at path.
func TransformFile(path string, fn TransformFunc) error {
	if fn == nil {
		return fmt.Errorf("transform: nil function: %w", ErrInvalidArgument)
	}
	doc, err := LoadDocument(path)
	if err != nil {
		return err
	}
	out, err := fn(*doc)
	if err != nil {
		return fmt.Errorf("transform %s: %w", path, err)
	}
	return SaveDocument(path, &out)
}

// Migrate copies every table of src into dst, replacing dst's rows. Both
// managers must be connected and dst must already have the tables.
func Migrate(ctx context.Context, src, dst *ExportManager) error {
	doc, err := src.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("export source: %w", err)
	}
	if err := dst.Restore(ctx, doc); err != nil {
		return fmt.Errorf("import to target: %w", err)
	}
	return nil
}

// RenameTable returns a TransformFunc that renames table from to to.
func RenameTable(from, to string) TransformFunc {
	return func(d Document) (Document, error) {
		if d.Table(to) != nil {
			return d, fmt.Errorf("table %s already exists: %w", to, ErrInvalidArgument)
		}
		tables := make([]TableData, len(d.Tables))
		copy(tables, d.Tables)
		found := false
		for i := range tables {
			if tables[i].Name == from {
				tables[i].Name = to
				found = true
			}
		}
		if !found {
			return d, fmt.Errorf("table %s not found: %w", from, ErrInvalidArgument)
		}
		d.Tables = tables
		return d, nil
	}
}

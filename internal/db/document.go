// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// DocumentVersion is written into the header of every exported document.
const DocumentVersion = "1"

const (
	recordHeader   = "header"
	recordDatabase = "database"
	recordTable    = "table"
)

// Document is a backend-agnostic snapshot of a database. On the wire it is
// a JSON array: one header record, one database record, then one record per
// table.
type Document struct {
	Version  string
	Comment  string
	Database string
	Tables   []TableData
}

// TableData is the content of one table.
type TableData struct {
	Name     string
	Database string
	Rows     []Row
}

// Table returns the named table or nil.
func (d *Document) Table(name string) *TableData {
	for i := range d.Tables {
		if d.Tables[i].Name == name {
			return &d.Tables[i]
		}
	}
	return nil
}

type headerRecord struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Comment string `json:"comment"`
}

type databaseRecord struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type tableRecord struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Database string `json:"database"`
	Data     []Row  `json:"data"`
}

// MarshalJSON renders the record array.
func (d Document) MarshalJSON() ([]byte, error) {
	records := make([]any, 0, len(d.Tables)+2)
	records = append(records,
		headerRecord{Type: recordHeader, Version: d.Version, Comment: d.Comment},
		databaseRecord{Type: recordDatabase, Name: d.Database},
	)
	for _, t := range d.Tables {
		data := t.Rows
		if data == nil {
			data = []Row{}
		}
		records = append(records, tableRecord{Type: recordTable, Name: t.Name, Database: t.Database, Data: data})
	}
	return json.Marshal(records)
}

// UnmarshalJSON parses and validates the record array. Numbers become
// int64 when integral and float64 otherwise.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("%w: expected header and database records, got %d records", ErrInvalidDocument, len(raw))
	}

	var out Document
	for i, msg := range raw {
		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &tag); err != nil {
			return fmt.Errorf("%w: record %d: %w", ErrInvalidDocument, i, err)
		}
		want := recordTable
		switch i {
		case 0:
			want = recordHeader
		case 1:
			want = recordDatabase
		}
		if tag.Type != want {
			return fmt.Errorf("%w: record %d has type %q, want %q", ErrInvalidDocument, i, tag.Type, want)
		}

		switch want {
		case recordHeader:
			var h headerRecord
			if err := json.Unmarshal(msg, &h); err != nil {
				return fmt.Errorf("%w: header: %w", ErrInvalidDocument, err)
			}
			out.Version, out.Comment = h.Version, h.Comment
		case recordDatabase:
			var r databaseRecord
			if err := json.Unmarshal(msg, &r); err != nil {
				return fmt.Errorf("%w: database record: %w", ErrInvalidDocument, err)
			}
			out.Database = r.Name
		default:
			t, err := decodeTable(msg)
			if err != nil {
				return fmt.Errorf("%w: record %d: %w", ErrInvalidDocument, i, err)
			}
			out.Tables = append(out.Tables, t)
		}
	}
	*d = out
	return nil
}

func decodeTable(msg json.RawMessage) (TableData, error) {
	var r struct {
		Name     string            `json:"name"`
		Database string            `json:"database"`
		Data     []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &r); err != nil {
		return TableData{}, err
	}
	if strings.TrimSpace(r.Name) == "" {
		return TableData{}, fmt.Errorf("table record without name")
	}
	t := TableData{Name: r.Name, Database: r.Database, Rows: make([]Row, 0, len(r.Data))}
	for j, rawRow := range r.Data {
		dec := json.NewDecoder(bytes.NewReader(rawRow))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return TableData{}, fmt.Errorf("table %s row %d: %w", r.Name, j, err)
		}
		for k, v := range row {
			row[k] = normalizeNumbers(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	default:
		return v
	}
}

// WriteDocument encodes doc as indented JSON.
func WriteDocument(w io.Writer, doc *Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// ReadDocument decodes and validates a document.
func ReadDocument(r io.Reader) (*Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func compressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zst")
}

// SaveDocument writes doc to path, zstd-compressed when path ends in ".zst".
// The file is replaced atomically.
func SaveDocument(path string, doc *Document) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if compressed(path) {
		zw, err := zstd.NewWriter(tmp)
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		if err := WriteDocument(zw, doc); err != nil {
			_ = zw.Close()
			return err
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("flush zstd writer: %w", err)
		}
	} else if err := WriteDocument(tmp, doc); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace export file: %w", err)
	}
	return nil
}

// LoadDocument reads a document from path, decompressing ".zst" files.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if !compressed(path) {
		return ReadDocument(f)
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	return ReadDocument(zr)
}

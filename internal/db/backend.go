// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db is the data access layer of DBBridge. It hides the differences
// between the supported engines (SQLite, MySQL, PostgreSQL) behind the
// Backend contract and builds generic CRUD, export and import on top of it.
package db // import "github.com/toeirei/dbbridge/internal/db"

import (
	"context"
	"fmt"
	"maps"
	"strings"
)

// Fetch selects which variant of a Result an Execute call populates.
type Fetch int

const (
	// FetchNone returns only the affected-rows summary.
	FetchNone Fetch = iota
	// FetchOne returns at most one row.
	FetchOne
	// FetchAll returns every row.
	FetchAll
)

func (f Fetch) String() string {
	switch f {
	case FetchNone:
		return "none"
	case FetchOne:
		return "one"
	case FetchAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseFetch is the inverse of Fetch.String.
func ParseFetch(s string) (Fetch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return FetchNone, nil
	case "one":
		return FetchOne, nil
	case "all":
		return FetchAll, nil
	default:
		return FetchNone, fmt.Errorf("unknown fetch mode %q: %w", s, ErrInvalidArgument)
	}
}

// PlaceholderStyle is the token a backend expects for positional parameters.
type PlaceholderStyle string

const (
	PlaceholderQuestion PlaceholderStyle = "?"
	PlaceholderDollar   PlaceholderStyle = "$"
	PlaceholderFormat   PlaceholderStyle = "%s"
)

// Row maps column names to values.
type Row = map[string]any

// Result is the outcome of Backend.Execute. Exactly one variant is populated,
// depending on the requested Fetch: the summary fields for FetchNone, Rows
// (zero or one entry) for FetchOne, Rows for FetchAll.
type Result struct {
	Columns      []string
	Rows         []Row
	RowsAffected int64
	LastInsertID int64
}

// First returns the first row or nil.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Params carries everything a backend needs to reach its database. Each
// backend validates the subset it requires when it is constructed and keeps
// its own copy afterwards.
type Params struct {
	Host     string
	Port     int
	User     string
	Password string
	Path     string
	Database string
	Options  map[string]string
}

func (p Params) clone() Params {
	p.Options = maps.Clone(p.Options)
	return p
}

// Backend is the capability contract every engine adapter implements. A
// Backend is safe to share, the handles it returns are not.
type Backend interface {
	// Name returns the engine name ("sqlite", "mysql", "postgres").
	Name() string
	// Database returns the configured default database (a name or a path).
	Database() string
	// Connect opens a dedicated connection. An empty database selects the
	// configured default; backends that support it connect server-level when
	// no default is configured either.
	Connect(ctx context.Context, database string) (*Handle, error)
	// Disconnect releases h. It is a no-op for nil or already closed handles.
	Disconnect(h *Handle) error
	// Execute runs one statement written in the backend's placeholder style.
	Execute(ctx context.Context, h *Handle, statement string, args []any, fetch Fetch) (*Result, error)
	// Exists reports whether the named database exists without requiring a
	// connection to it.
	Exists(ctx context.Context, name string) (bool, error)
	// Create creates the named database. Creating an existing database is a no-op.
	Create(ctx context.Context, name string) error
	// Placeholder returns the native positional parameter token.
	Placeholder() PlaceholderStyle
	// NativeError reports whether err originates from this backend's driver.
	NativeError(err error) bool
	// Tables lists the user tables visible through h, sorted by name.
	Tables(ctx context.Context, h *Handle) ([]string, error)
	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string
}

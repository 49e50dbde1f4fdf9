// Copyright (c) 2025 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/uptrace/bun/dialect/pgdialect"
)

const (
	defaultPostgresPort    = 5432
	postgresMaintenanceDB  = "postgres"
	pgUniqueViolation      = "23505"
	pgDuplicateDatabase    = "42P04"
	pgAdminShutdown        = "57P01"
	pgConnectionExceptions = "08"
)

// PostgresBackend is the PostgreSQL backend, driven through pgx's
// database/sql driver. PostgreSQL has no connection without a database, so
// server-level work uses the "postgres" maintenance database. Inserts never
// report a generated id.
type PostgresBackend struct {
	params Params
}

// NewPostgresBackend validates p and returns a backend for the server it names.
func NewPostgresBackend(p Params, available bool) (*PostgresBackend, error) {
	if !available {
		return nil, fmt.Errorf("postgres: %w", ErrDriverUnavailable)
	}
	if strings.TrimSpace(p.Host) == "" {
		return nil, fmt.Errorf("postgres: host is required: %w", ErrInvalidParams)
	}
	if strings.TrimSpace(p.User) == "" {
		return nil, fmt.Errorf("postgres: user is required: %w", ErrInvalidParams)
	}
	if p.Port < 0 || p.Port > 65535 {
		return nil, fmt.Errorf("postgres: port %d out of range: %w", p.Port, ErrInvalidParams)
	}
	if p.Port == 0 {
		p.Port = defaultPostgresPort
	}
	return &PostgresBackend{params: p.clone()}, nil
}

func (b *PostgresBackend) Name() string                  { return "postgres" }
func (b *PostgresBackend) Database() string              { return b.params.Database }
func (b *PostgresBackend) Placeholder() PlaceholderStyle { return PlaceholderDollar }
func (b *PostgresBackend) QuoteIdent(name string) string { return quoteIdent(name, '"') }

func (b *PostgresBackend) addr() string {
	return net.JoinHostPort(b.params.Host, strconv.Itoa(b.params.Port))
}

// DSN renders a postgres:// URL for database.
func (b *PostgresBackend) DSN(database string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   b.addr(),
		Path:   "/" + database,
	}
	if b.params.Password != "" {
		u.User = url.UserPassword(b.params.User, b.params.Password)
	} else {
		u.User = url.User(b.params.User)
	}
	q := url.Values{}
	q.Set("connect_timeout", "10")
	for k, v := range b.params.Options {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connect opens a connection to database, falling back to the configured
// database and then to the maintenance database.
func (b *PostgresBackend) Connect(ctx context.Context, database string) (*Handle, error) {
	if database == "" {
		database = b.params.Database
	}
	if database == "" {
		database = postgresMaintenanceDB
	}
	return b.open(ctx, database)
}

func (b *PostgresBackend) open(ctx context.Context, database string) (*Handle, error) {
	// The pgx stdlib registers driver name "pgx".
	sqlDB, err := sql.Open("pgx", b.DSN(database))
	if err != nil {
		return nil, &ConnectionError{Backend: b.Name(), Target: b.addr(), Err: err}
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	h, err := openHandle(ctx, b.Name(), b.addr(), database, sqlDB, pgdialect.New())
	if err != nil {
		return nil, err
	}
	if err := h.conn.PingContext(ctx); err != nil {
		_ = h.close()
		return nil, &ConnectionError{Backend: b.Name(), Target: b.addr(), Err: err}
	}
	return h, nil
}

func (b *PostgresBackend) Disconnect(h *Handle) error {
	return h.close()
}

func (b *PostgresBackend) Execute(ctx context.Context, h *Handle, statement string, args []any, fetch Fetch) (*Result, error) {
	return execute(ctx, b.Name(), b.fatal, b.translate, h, statement, args, fetch)
}

func (b *PostgresBackend) serverLevel(ctx context.Context, fn func(h *Handle) error) error {
	h, err := b.open(ctx, postgresMaintenanceDB)
	if err != nil {
		return err
	}
	defer func() { _ = b.Disconnect(h) }()
	return fn(h)
}

func (b *PostgresBackend) Exists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		name = b.params.Database
	}
	var found bool
	err := b.serverLevel(ctx, func(h *Handle) error {
		var err error
		found, err = b.exists(ctx, h, name)
		return err
	})
	return found, err
}

func (b *PostgresBackend) exists(ctx context.Context, h *Handle, name string) (bool, error) {
	res, err := b.Execute(ctx, h, "SELECT datname FROM pg_database WHERE datname = $1", []any{name}, FetchOne)
	if err != nil {
		return false, err
	}
	return len(res.Rows) > 0, nil
}

// Create creates the database unless it exists. CREATE DATABASE has no
// IF NOT EXISTS form, so a concurrent creator's duplicate error counts as
// success.
func (b *PostgresBackend) Create(ctx context.Context, name string) error {
	if name == "" {
		name = b.params.Database
	}
	if name == "" {
		return fmt.Errorf("postgres: database name is required: %w", ErrInvalidArgument)
	}
	return b.serverLevel(ctx, func(h *Handle) error {
		found, err := b.exists(ctx, h, name)
		if err != nil || found {
			return err
		}
		_, err = b.Execute(ctx, h, "CREATE DATABASE "+b.QuoteIdent(name), nil, FetchNone)
		var pe *pgconn.PgError
		if errors.As(err, &pe) && pe.Code == pgDuplicateDatabase {
			return nil
		}
		return err
	})
}

// Tables lists base tables in the current schema.
func (b *PostgresBackend) Tables(ctx context.Context, h *Handle) ([]string, error) {
	res, err := b.Execute(ctx, h, "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name", nil, FetchAll)
	if err != nil {
		return nil, err
	}
	return columnStrings(res, "table_name"), nil
}

func (b *PostgresBackend) NativeError(err error) bool {
	var pe *pgconn.PgError
	var ce *pgconn.ConnectError
	return errors.As(err, &pe) || errors.As(err, &ce)
}

func (b *PostgresBackend) translate(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

func (b *PostgresBackend) fatal(err error) bool {
	if isBadConn(err) {
		return true
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgAdminShutdown || strings.HasPrefix(pe.Code, pgConnectionExceptions)
	}
	return false
}

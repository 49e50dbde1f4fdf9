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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/uptrace/bun/dialect/mysqldialect"
)

const (
	defaultMySQLPort    = 3306
	defaultDialTimeout  = 10 * time.Second
	mysqlErrDupEntry    = 1062
	mysqlErrServerGone  = 2006
	mysqlErrLostConnect = 2013
)

// MySQLBackend is the client/server backend for MySQL and MariaDB. The
// database is optional at connect time; without one the handle is
// server-level.
type MySQLBackend struct {
	params Params
}

// NewMySQLBackend validates p and returns a backend for the server it names.
func NewMySQLBackend(p Params, available bool) (*MySQLBackend, error) {
	if !available {
		return nil, fmt.Errorf("mysql: %w", ErrDriverUnavailable)
	}
	if strings.TrimSpace(p.Host) == "" {
		return nil, fmt.Errorf("mysql: host is required: %w", ErrInvalidParams)
	}
	if strings.TrimSpace(p.User) == "" {
		return nil, fmt.Errorf("mysql: user is required: %w", ErrInvalidParams)
	}
	if p.Port < 0 || p.Port > 65535 {
		return nil, fmt.Errorf("mysql: port %d out of range: %w", p.Port, ErrInvalidParams)
	}
	if p.Port == 0 {
		p.Port = defaultMySQLPort
	}
	if v, ok := p.Options["timeout"]; ok {
		if _, err := time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("mysql: invalid timeout %q: %w", v, ErrInvalidParams)
		}
	}
	return &MySQLBackend{params: p.clone()}, nil
}

func (b *MySQLBackend) Name() string                  { return "mysql" }
func (b *MySQLBackend) Database() string              { return b.params.Database }
func (b *MySQLBackend) Placeholder() PlaceholderStyle { return PlaceholderQuestion }
func (b *MySQLBackend) QuoteIdent(name string) string { return quoteIdent(name, '`') }

// BackslashEscapes reports whether string literals use backslash escapes,
// which is the server default unless sql_mode says NO_BACKSLASH_ESCAPES.
func (b *MySQLBackend) BackslashEscapes() bool {
	return !strings.Contains(strings.ToUpper(b.params.Options["sql_mode"]), "NO_BACKSLASH_ESCAPES")
}

func (b *MySQLBackend) addr() string {
	return net.JoinHostPort(b.params.Host, strconv.Itoa(b.params.Port))
}

// DSN renders the driver DSN for database ("" for a server-level connection).
func (b *MySQLBackend) DSN(database string) string {
	cfg := mysql.NewConfig()
	cfg.User = b.params.User
	cfg.Passwd = b.params.Password
	cfg.Net = "tcp"
	cfg.Addr = b.addr()
	cfg.DBName = database
	cfg.ParseTime = true
	// Report matched rather than changed rows so Update counts match the
	// other backends.
	cfg.ClientFoundRows = true
	cfg.Timeout = defaultDialTimeout
	keys := make([]string, 0, len(b.params.Options))
	for k := range b.params.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := b.params.Options[k]
		switch k {
		case "timeout":
			// Validated in NewMySQLBackend.
			cfg.Timeout, _ = time.ParseDuration(v)
		case "tls":
			cfg.TLSConfig = v
		default:
			if cfg.Params == nil {
				cfg.Params = map[string]string{}
			}
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

// Connect opens a connection to database, the configured one when empty.
// With neither set the handle is server-level.
func (b *MySQLBackend) Connect(ctx context.Context, database string) (*Handle, error) {
	if database == "" {
		database = b.params.Database
	}
	return b.open(ctx, database)
}

func (b *MySQLBackend) open(ctx context.Context, database string) (*Handle, error) {
	sqlDB, err := sql.Open("mysql", b.DSN(database))
	if err != nil {
		return nil, &ConnectionError{Backend: b.Name(), Target: b.addr(), Err: err}
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	h, err := openHandle(ctx, b.Name(), b.addr(), database, sqlDB, mysqldialect.New())
	if err != nil {
		return nil, err
	}
	if err := h.conn.PingContext(ctx); err != nil {
		_ = h.close()
		return nil, &ConnectionError{Backend: b.Name(), Target: b.addr(), Err: err}
	}
	return h, nil
}

func (b *MySQLBackend) Disconnect(h *Handle) error {
	return h.close()
}

func (b *MySQLBackend) Execute(ctx context.Context, h *Handle, statement string, args []any, fetch Fetch) (*Result, error) {
	return execute(ctx, b.Name(), b.fatal, b.translate, h, statement, args, fetch)
}

// serverLevel runs fn on a short-lived connection with no database selected.
func (b *MySQLBackend) serverLevel(ctx context.Context, fn func(h *Handle) error) error {
	h, err := b.open(ctx, "")
	if err != nil {
		return err
	}
	defer func() { _ = b.Disconnect(h) }()
	return fn(h)
}

func (b *MySQLBackend) Exists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		name = b.params.Database
	}
	var found bool
	err := b.serverLevel(ctx, func(h *Handle) error {
		res, err := b.Execute(ctx, h, "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?", []any{name}, FetchOne)
		if err != nil {
			return err
		}
		found = len(res.Rows) > 0
		return nil
	})
	return found, err
}

func (b *MySQLBackend) Create(ctx context.Context, name string) error {
	if name == "" {
		name = b.params.Database
	}
	if name == "" {
		return fmt.Errorf("mysql: database name is required: %w", ErrInvalidArgument)
	}
	return b.serverLevel(ctx, func(h *Handle) error {
		_, err := b.Execute(ctx, h, "CREATE DATABASE IF NOT EXISTS "+b.QuoteIdent(name), nil, FetchNone)
		return err
	})
}

// Tables lists base tables of the selected database; views are skipped.
func (b *MySQLBackend) Tables(ctx context.Context, h *Handle) ([]string, error) {
	res, err := b.Execute(ctx, h, "SHOW FULL TABLES", nil, FetchAll)
	if err != nil {
		return nil, err
	}
	if len(res.Columns) < 2 {
		return nil, nil
	}
	nameCol, typeCol := res.Columns[0], res.Columns[1]
	var out []string
	for _, r := range res.Rows {
		if fmt.Sprint(r[typeCol]) != "BASE TABLE" {
			continue
		}
		out = append(out, fmt.Sprint(r[nameCol]))
	}
	sort.Strings(out)
	return out, nil
}

func (b *MySQLBackend) NativeError(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) || errors.Is(err, mysql.ErrInvalidConn)
}

func (b *MySQLBackend) translate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrDupEntry {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

func (b *MySQLBackend) fatal(err error) bool {
	if isBadConn(err) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrServerGone || me.Number == mysqlErrLostConnect
	}
	return false
}

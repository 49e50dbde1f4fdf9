// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

// Capabilities records which database/sql drivers are registered in this
// process. Probe once at start-up and pass the result to New.
type Capabilities struct {
	SQLite   bool
	MySQL    bool
	Postgres bool
}

// ProbeDrivers inspects the registered database/sql drivers.
func ProbeDrivers() Capabilities {
	drivers := sql.Drivers()
	caps := Capabilities{
		SQLite:   slices.Contains(drivers, "sqlite"),
		MySQL:    slices.Contains(drivers, "mysql"),
		Postgres: slices.Contains(drivers, "pgx"),
	}
	dbLogf("db: driver probe: sqlite=%t mysql=%t postgres=%t", caps.SQLite, caps.MySQL, caps.Postgres)
	return caps
}

// Kinds lists the backend names accepted by New.
func Kinds() []string {
	return []string{"sqlite", "mysql", "postgres"}
}

// New returns the backend for kind ("sqlite", "mysql", "postgres"; "postgresql"
// and "mariadb" are accepted aliases).
func New(kind string, p Params, caps Capabilities) (Backend, error) {
	switch normalizeKind(kind) {
	case "sqlite":
		return NewSQLiteBackend(p, caps.SQLite)
	case "mysql":
		return NewMySQLBackend(p, caps.MySQL)
	case "postgres":
		return NewPostgresBackend(p, caps.Postgres)
	default:
		return nil, fmt.Errorf("unsupported database type %q (want one of %s): %w", kind, strings.Join(Kinds(), ", "), ErrInvalidParams)
	}
}

func normalizeKind(kind string) string {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "sqlite3":
		return "sqlite"
	case "mariadb":
		return "mysql"
	case "postgresql", "pgx":
		return "postgres"
	default:
		return k
	}
}

// ParamsFromDSN converts a driver DSN into Params: a file path for sqlite,
// a go-sql-driver DSN for mysql, a URL or keyword/value string for postgres.
func ParamsFromDSN(kind, dsn string) (Params, error) {
	switch normalizeKind(kind) {
	case "sqlite":
		if dsn == "" {
			return Params{}, fmt.Errorf("sqlite: empty path: %w", ErrInvalidParams)
		}
		return Params{Path: dsn}, nil
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return Params{}, fmt.Errorf("mysql: %w: %w", ErrInvalidParams, err)
		}
		p := Params{User: cfg.User, Password: cfg.Passwd, Database: cfg.DBName, Options: cfg.Params}
		host, port, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			p.Host = cfg.Addr
		} else {
			p.Host = host
			p.Port, _ = strconv.Atoi(port)
		}
		return p, nil
	case "postgres":
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return Params{}, fmt.Errorf("postgres: %w: %w", ErrInvalidParams, err)
		}
		return Params{
			Host:     cfg.Host,
			Port:     int(cfg.Port),
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
			Options:  cfg.RuntimeParams,
		}, nil
	default:
		return Params{}, fmt.Errorf("unsupported database type %q: %w", kind, ErrInvalidParams)
	}
}

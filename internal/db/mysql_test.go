package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestNewMySQLBackend_Validation(t *testing.T) {
	cases := []struct {
		name string
		p    Params
	}{
		{"missing host", Params{User: "u"}},
		{"missing user", Params{Host: "db"}},
		{"bad port", Params{Host: "db", User: "u", Port: 70000}},
		{"bad timeout", Params{Host: "db", User: "u", Options: map[string]string{"timeout": "soon"}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := NewMySQLBackend(c.p, true); !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
	if _, err := NewMySQLBackend(Params{Host: "db", User: "u"}, false); !errors.Is(err, ErrDriverUnavailable) {
		t.Fatalf("expected ErrDriverUnavailable, got %v", err)
	}
}

func TestMySQLBackend_DSN(t *testing.T) {
	b, err := NewMySQLBackend(Params{
		Host:     "db.internal",
		User:     "app",
		Password: "s3cret",
		Database: "inventory",
		Options:  map[string]string{"innodb_lock_wait_timeout": "5", "timeout": "3s"},
	}, true)
	if err != nil {
		t.Fatalf("NewMySQLBackend failed: %v", err)
	}
	if b.Database() != "inventory" || b.Placeholder() != PlaceholderQuestion {
		t.Fatalf("unexpected backend identity")
	}

	cfg, err := mysql.ParseDSN(b.DSN("inventory"))
	if err != nil {
		t.Fatalf("DSN does not parse: %v", err)
	}
	if cfg.Addr != "db.internal:3306" || cfg.User != "app" || cfg.Passwd != "s3cret" || cfg.DBName != "inventory" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.ParseTime || !cfg.ClientFoundRows {
		t.Fatalf("expected parseTime and clientFoundRows to be enabled")
	}
	// Client-side interpolation would bind a "?" inside quoted text.
	if cfg.InterpolateParams {
		t.Fatalf("expected server-side parameter binding")
	}
	if cfg.Timeout != 3*time.Second {
		t.Fatalf("timeout = %s; want 3s", cfg.Timeout)
	}
	if cfg.Params["innodb_lock_wait_timeout"] != "5" {
		t.Fatalf("expected session variable to be forwarded, got %v", cfg.Params)
	}

	server, err := mysql.ParseDSN(b.DSN(""))
	if err != nil || server.DBName != "" {
		t.Fatalf("server-level DSN should select no database: %+v, %v", server, err)
	}
}

func TestMySQLBackend_QuoteIdent(t *testing.T) {
	b, _ := NewMySQLBackend(Params{Host: "db", User: "u"}, true)
	if got := b.QuoteIdent("order"); got != "`order`" {
		t.Fatalf("QuoteIdent = %s", got)
	}
}

func TestMySQLBackend_UnreachableIsConnectionError(t *testing.T) {
	b, _ := NewMySQLBackend(Params{Host: "127.0.0.1", Port: 1, User: "u", Password: "s3cret", Options: map[string]string{"timeout": "1s"}}, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := b.Connect(ctx, ""); !IsConnectionError(err) {
		t.Fatalf("expected ConnectionError, got %T: %v", err, err)
	}
	if _, err := b.Exists(ctx, "x"); !IsConnectionError(err) {
		t.Fatalf("Exists: expected ConnectionError, got %v", err)
	}
	err := b.Create(ctx, "x")
	if !IsConnectionError(err) {
		t.Fatalf("Create: expected ConnectionError, got %v", err)
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Fatalf("error must not leak credentials")
	}
}

func TestMySQLBackend_ErrorClassification(t *testing.T) {
	b, _ := NewMySQLBackend(Params{Host: "db", User: "u"}, true)
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'name'"}
	if !b.NativeError(dup) || !errors.Is(b.translate(dup), ErrDuplicate) {
		t.Fatalf("expected 1062 to be native and duplicate")
	}
	if !errors.As(b.translate(dup), new(*mysql.MySQLError)) {
		t.Fatalf("translation must keep the native error reachable")
	}
	syntax := &mysql.MySQLError{Number: 1064, Message: "syntax"}
	if errors.Is(b.translate(syntax), ErrDuplicate) || b.fatal(syntax) {
		t.Fatalf("syntax errors are neither duplicates nor fatal")
	}
	if !b.fatal(mysql.ErrInvalidConn) || !b.fatal(&mysql.MySQLError{Number: 2006}) {
		t.Fatalf("expected lost connections to be fatal")
	}
	if b.NativeError(errors.New("plain")) {
		t.Fatalf("plain errors are not native")
	}
}

func TestMySQLBackend_BackslashEscapesInLiterals(t *testing.T) {
	b, err := NewMySQLBackend(Params{Host: "db", User: "u"}, true)
	if err != nil {
		t.Fatalf("NewMySQLBackend failed: %v", err)
	}
	if !b.BackslashEscapes() {
		t.Fatalf("expected backslash escapes by default")
	}
	if got := NewConnector(b).translate(`SELECT 'a\'%s', %s`); got != `SELECT 'a\'%s', ?` {
		t.Fatalf("translate = %q", got)
	}

	strict, err := NewMySQLBackend(Params{Host: "db", User: "u", Options: map[string]string{"sql_mode": "'ANSI_QUOTES,NO_BACKSLASH_ESCAPES'"}}, true)
	if err != nil {
		t.Fatalf("NewMySQLBackend failed: %v", err)
	}
	if strict.BackslashEscapes() {
		t.Fatalf("expected NO_BACKSLASH_ESCAPES to disable backslash escapes")
	}
}

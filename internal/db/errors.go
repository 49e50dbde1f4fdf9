// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicate is returned when attempting to insert a record that already exists.
var ErrDuplicate = errors.New("duplicate record")

// Validation and state sentinels. Callers compare with errors.Is.
var (
	ErrNotConnected      = errors.New("not connected")
	ErrDriverUnavailable = errors.New("database driver not available")
	ErrInvalidParams     = errors.New("invalid connection parameters")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotSelect         = errors.New("statement is not a SELECT")
	ErrInvalidDocument   = errors.New("invalid export document")
)

// ConnectionError reports that a backend could not be reached, opened or kept
// alive: bad credentials, unreachable host, unwritable path, or a failed
// post-connect probe. These are usually worth retrying once the environment
// is fixed.
type ConnectionError struct {
	Backend string // backend name, e.g. "sqlite"
	Target  string // path or host:port, never includes the password
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: connection failed: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("%s: connection to %s failed: %v", e.Backend, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports that the backend was reached but a statement failed.
// Statement and Args are what the caller passed in, before placeholder
// translation. If a rollback was attempted and failed as well, RollbackErr
// carries that failure next to the original one.
type QueryError struct {
	Statement   string
	Args        []any
	Err         error
	RollbackErr error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query failed: %v", e.Err)
	fmt.Fprintf(&b, " (statement: %q", e.Statement)
	if len(e.Args) > 0 {
		fmt.Fprintf(&b, ", args: %v", e.Args)
	}
	b.WriteString(")")
	if e.RollbackErr != nil {
		fmt.Fprintf(&b, "; rollback also failed: %v", e.RollbackErr)
	}
	return b.String()
}

// Unwrap exposes the native error, the rollback error and, for unique
// violations, ErrDuplicate.
func (e *QueryError) Unwrap() []error {
	errs := make([]error, 0, 3)
	if e.Err != nil {
		errs = append(errs, e.Err)
		if !errors.Is(e.Err, ErrDuplicate) && errors.Is(MapDBError(e.Err), ErrDuplicate) {
			errs = append(errs, ErrDuplicate)
		}
	}
	if e.RollbackErr != nil {
		errs = append(errs, e.RollbackErr)
	}
	return errs
}

// IsConnectionError reports whether err is, or wraps, a *ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsQueryError reports whether err is, or wraps, a *QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// MapDBError inspects low-level driver errors and maps common constraint
// violations to package-level sentinel errors (like ErrDuplicate). Backends
// classify their own typed errors first; this string-based mapping is the
// fallback for anything they do not recognize.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	le := strings.ToLower(err.Error())
	// MySQL duplicate entry, Postgres unique violation (23505), SQLite unique constraint
	if strings.Contains(le, "duplicate") || strings.Contains(le, "unique") || strings.Contains(le, "23505") || strings.Contains(le, "1062") {
		return ErrDuplicate
	}
	return err
}

// Copyright (c) 2025 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
)

// Maintainer is implemented by backends that offer engine-specific
// housekeeping. Maintain runs outside any transaction.
type Maintainer interface {
	Maintain(ctx context.Context, h *Handle) error
}

// Maintain runs PRAGMA optimize, VACUUM and a WAL checkpoint, then fails if
// integrity_check reports anything but "ok".
func (b *SQLiteBackend) Maintain(ctx context.Context, h *Handle) error {
	// PRAGMA optimize may not be supported or useful in some environments
	// (e.g., in-memory filesystems); treat optimize errors as non-fatal.
	if _, err := b.Execute(ctx, h, "PRAGMA optimize", nil, FetchNone); err != nil {
		dbLogf("db: sqlite optimize failed (ignored): %v", err)
	}
	if _, err := b.Execute(ctx, h, "VACUUM", nil, FetchNone); err != nil {
		return fmt.Errorf("sqlite vacuum failed: %w", err)
	}
	// WAL checkpoint; ignore errors if not supported.
	_, _ = b.Execute(ctx, h, "PRAGMA wal_checkpoint(TRUNCATE)", nil, FetchNone)
	res, err := b.Execute(ctx, h, "PRAGMA integrity_check", nil, FetchOne)
	if err != nil {
		return fmt.Errorf("sqlite integrity_check failed: %w", err)
	}
	if row := res.First(); row != nil {
		if v := fmt.Sprint(row["integrity_check"]); v != "ok" {
			return fmt.Errorf("sqlite integrity_check failed: %s", v)
		}
	}
	return nil
}

// Maintain runs OPTIMIZE TABLE on every table. Per-table failures do not
// stop the loop; the last one is returned.
func (b *MySQLBackend) Maintain(ctx context.Context, h *Handle) error {
	tables, err := b.Tables(ctx, h)
	if err != nil {
		return fmt.Errorf("mysql show tables failed: %w", err)
	}
	var lastErr error
	for _, table := range tables {
		if _, err := b.Execute(ctx, h, "OPTIMIZE TABLE "+b.QuoteIdent(table), nil, FetchAll); err != nil {
			dbLogf("db: mysql optimize table %s failed: %v", table, err)
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("mysql optimize encountered errors: %w", lastErr)
	}
	return nil
}

// Maintain runs VACUUM ANALYZE on the connected database.
func (b *PostgresBackend) Maintain(ctx context.Context, h *Handle) error {
	if _, err := b.Execute(ctx, h, "VACUUM ANALYZE", nil, FetchNone); err != nil {
		return fmt.Errorf("postgres vacuum failed: %w", err)
	}
	return nil
}

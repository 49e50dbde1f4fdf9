// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package worker

import (
	"context"

	"github.com/toeirei/dbbridge/internal/db"
)

// ExportTask writes a snapshot of the database to destination.
func ExportTask(destination string) Task {
	return func(ctx context.Context, m *db.ExportManager) (any, error) {
		if err := m.Export(ctx, destination); err != nil {
			return nil, err
		}
		return destination, nil
	}
}

// ImportTask replaces table contents with the document at source.
func ImportTask(source string) Task {
	return func(ctx context.Context, m *db.ExportManager) (any, error) {
		if err := m.Import(ctx, source); err != nil {
			return nil, err
		}
		return source, nil
	}
}

// ExecTask runs one statement and returns its *db.Result.
func ExecTask(statement string, params []any, fetch db.Fetch) Task {
	return func(ctx context.Context, m *db.ExportManager) (any, error) {
		res, err := m.Execute(ctx, statement, params, fetch)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

// TablesTask lists the tables of the connected database.
func TablesTask() Task {
	return func(ctx context.Context, m *db.ExportManager) (any, error) {
		tables, err := m.Tables(ctx)
		if err != nil {
			return nil, err
		}
		return tables, nil
	}
}

// MaintainTask runs the backend maintenance routine.
func MaintainTask() Task {
	return func(ctx context.Context, m *db.ExportManager) (any, error) {
		return nil, m.Maintain(ctx)
	}
}

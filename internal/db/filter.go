// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"fmt"
	"slices"
	"strings"
)

// FilterTablesByTokens returns the subset of tables whose name contains all
// tokens. Matching is case-insensitive; blank tokens are ignored. If tokens
// is empty, the original slice is returned.
func FilterTablesByTokens(tables []string, tokens []string) []string {
	if len(tokens) == 0 {
		return tables
	}
	out := make([]string, 0, len(tables))
	for _, name := range tables {
		lower := strings.ToLower(name)
		matchedAll := true
		for _, tok := range tokens {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok == "" {
				continue
			}
			if !strings.Contains(lower, tok) {
				matchedAll = false
				break
			}
		}
		if matchedAll {
			out = append(out, name)
		}
	}
	return out
}

// KeepTables returns a TransformFunc that drops every table record not named
// in names. Naming a table the document lacks is an error.
func KeepTables(names ...string) TransformFunc {
	return func(d Document) (Document, error) {
		if len(names) == 0 {
			return d, fmt.Errorf("keep tables: no table names: %w", ErrInvalidArgument)
		}
		for _, n := range names {
			if d.Table(n) == nil {
				return d, fmt.Errorf("table %s not found: %w", n, ErrInvalidArgument)
			}
		}
		kept := make([]TableData, 0, len(names))
		for _, t := range d.Tables {
			if slices.Contains(names, t.Name) {
				kept = append(kept, t)
			}
		}
		d.Tables = kept
		return d, nil
	}
}

// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

// debug_export prints a summary of an exported document: the header, the
// source database and the row count and columns of every table.
package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/toeirei/dbbridge/internal/db"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Error("debug_export failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: debug_export <file>")
	}
	doc, err := db.LoadDocument(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "version: %s\n", doc.Version)
	fmt.Fprintf(out, "comment: %s\n", doc.Comment)
	fmt.Fprintf(out, "database: %s\n", doc.Database)
	fmt.Fprintf(out, "tables: %d\n", len(doc.Tables))
	for _, t := range doc.Tables {
		fmt.Fprintf(out, "table: %s rows=%d columns=%s\n", t.Name, len(t.Rows), strings.Join(columns(t), ","))
	}
	return nil
}

// columns lists every column seen in any row of t, sorted.
func columns(t db.TableData) []string {
	seen := map[string]struct{}{}
	for _, r := range t.Rows {
		for c := range r {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

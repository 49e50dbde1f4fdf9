// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// render writes v to w as indented JSON or as YAML.
func render(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		return fmt.Errorf("%w %q", errUnknownFormat, format)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

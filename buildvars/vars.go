// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package buildvars contains variables injected at build time.
package buildvars

// Version is set at link time via `-ldflags -X github.com/toeirei/dbbridge/buildvars.Version=...`.
// It will be empty for local or development builds.
var Version string

// Commit is the source revision, set the same way as Version.
var Commit string

// VersionOrDefault returns `Version` if set, otherwise returns the provided default.
func VersionOrDefault(def string) string {
	if len(Version) > 0 {
		return Version
	}
	return def
}

// String renders version and commit for --version output.
func String() string {
	v := VersionOrDefault("dev")
	if Commit == "" {
		return v
	}
	return v + " (" + Commit + ")"
}

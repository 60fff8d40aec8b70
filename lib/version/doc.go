// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for bureau-sql.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected at
// build time via -ldflags -X and default to "unknown" / "0.1.0-dev" in
// development builds and tests.
//
// [Info] is the one-line form printed by --version; [Full] adds the Go
// toolchain and platform along with the linked SQLite engine version.
package version

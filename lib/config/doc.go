// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration for bureau-sql and
// other embedders of sqlitedb.
//
// Configuration comes from a single file named by either the
// BUREAU_SQL_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search and no
// environment variable overrides individual values.
//
// The file may carry development, staging, and production sections
// that override the base values when [Config].Environment matches.
// Production refuses to create a missing database file unless its own
// section sets database.create.
//
// After loading, ${VAR} and ${VAR:-default} in database.path are
// expanded from the environment. Durations are Go duration strings.
// [Config.PoolConfig] turns the database section into a
// sqlitepool.Config.
package config

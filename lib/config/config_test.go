// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/sqlsession/lib/sqlitepool"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bureau-sql.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if !cfg.Database.WAL || !cfg.Database.Create {
		t.Errorf("expected wal and create by default, got %+v", cfg.Database)
	}
	if cfg.Export.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Export.Compression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BUREAU_SQL_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "BUREAU_SQL_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, `
environment: staging
database:
  path: /srv/data/app.db
  max_secondary_connections: 2
  busy_timeout: 250ms
cursor:
  window_size: 4096
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Database.Path != "/srv/data/app.db" || cfg.Database.MaxSecondaryConnections != 2 {
		t.Errorf("unexpected database section: %+v", cfg.Database)
	}
	if cfg.Cursor.WindowSize != 4096 {
		t.Errorf("expected window_size=4096, got %d", cfg.Cursor.WindowSize)
	}
	// Unset fields keep their defaults.
	if !cfg.Database.WAL || cfg.Database.BusyLogInterval != "30s" {
		t.Errorf("defaults lost: %+v", cfg.Database)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeConfig(t, "database: [unterminated")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: development
database:
  path: /srv/data/app.db
  wal: true
development:
  database:
    path: /tmp/dev.db
    wal: false
  export:
    compression: lz4
production:
  database:
    path: /srv/prod.db
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Database.Path != "/tmp/dev.db" {
		t.Errorf("expected development path override, got %s", cfg.Database.Path)
	}
	if cfg.Database.WAL {
		t.Error("expected development override to disable wal")
	}
	if cfg.Export.Compression != "lz4" {
		t.Errorf("expected compression=lz4, got %s", cfg.Export.Compression)
	}
}

func TestProductionDoesNotCreateByDefault(t *testing.T) {
	path := writeConfig(t, "environment: production\ndatabase:\n  path: /srv/prod.db\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Database.Create {
		t.Error("production config creates missing databases")
	}
}

func TestProductionSectionKeepsCreateDefault(t *testing.T) {
	path := writeConfig(t, `environment: production
database:
  path: /srv/base.db
production:
  database:
    path: /srv/prod.db
    max_secondary_connections: 8
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Database.Path != "/srv/prod.db" || cfg.Database.MaxSecondaryConnections != 8 {
		t.Errorf("production overrides not applied: %+v", cfg.Database)
	}
	if cfg.Database.Create {
		t.Error("production section without create still creates missing databases")
	}

	path = writeConfig(t, `environment: production
production:
  database:
    create: true
`)
	cfg, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.Database.Create {
		t.Error("explicit production create was ignored")
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("BUREAU_SQL_TEST_ROOT", "/var/lib/bureau")
	t.Setenv("BUREAU_SQL_TEST_UNSET", "")

	tests := []struct {
		input string
		want  string
	}{
		{"${BUREAU_SQL_TEST_ROOT}/app.db", "/var/lib/bureau/app.db"},
		{"${BUREAU_SQL_TEST_UNSET:-/tmp}/app.db", "/tmp/app.db"},
		{"${BUREAU_SQL_TEST_UNSET}/app.db", "/app.db"},
		{"plain.db", "plain.db"},
	}
	for _, tt := range tests {
		if got := expandVars(tt.input); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLoadFile_ExpandsDatabasePath(t *testing.T) {
	t.Setenv("BUREAU_SQL_TEST_ROOT", "/var/lib/bureau")
	path := writeConfig(t, "database:\n  path: ${BUREAU_SQL_TEST_ROOT}/app.db\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Database.Path != "/var/lib/bureau/app.db" {
		t.Errorf("expected expanded path, got %s", cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Environment = "testing"
	cfg.Database.BusyTimeout = "soon"
	cfg.Database.BusyLogInterval = "-1s"
	cfg.Cursor.WindowSize = -1
	cfg.Export.Compression = "gzip"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, fragment := range []string{
		"invalid environment: testing",
		"database.busy_timeout",
		"database.busy_log_interval must not be negative",
		"cursor.window_size",
		"export.compression",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("validation error missing %q:\n%v", fragment, err)
		}
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/srv/data/app.db"
	cfg.Database.MaxSecondaryConnections = 3
	cfg.Database.BusyTimeout = "250ms"
	cfg.Database.Label = "app"

	poolConfig, err := cfg.PoolConfig(nil)
	if err != nil {
		t.Fatalf("PoolConfig: %v", err)
	}
	want := sqlitepool.EnableWAL | sqlitepool.CreateIfNecessary
	if poolConfig.Flags != want {
		t.Errorf("flags = %s, want %s", poolConfig.Flags, want)
	}
	if poolConfig.BusyTimeout != 250*time.Millisecond || poolConfig.BusyLogInterval != 30*time.Second {
		t.Errorf("durations = %v, %v", poolConfig.BusyTimeout, poolConfig.BusyLogInterval)
	}
	if poolConfig.Path != "/srv/data/app.db" || poolConfig.MaxSecondaryConnections != 3 ||
		poolConfig.Label != "app" || !poolConfig.ForeignKeys {
		t.Errorf("unexpected pool config: %+v", poolConfig)
	}

	cfg.Database.ReadOnly = true
	poolConfig, err = cfg.PoolConfig(nil)
	if err != nil {
		t.Fatalf("PoolConfig read-only: %v", err)
	}
	if !poolConfig.Flags.ReadOnly() || poolConfig.Flags&sqlitepool.CreateIfNecessary != 0 {
		t.Errorf("read-only flags = %s", poolConfig.Flags)
	}

	cfg.Database.BusyTimeout = "never"
	if _, err := cfg.PoolConfig(nil); err == nil {
		t.Error("expected error for unparseable busy_timeout")
	}
}

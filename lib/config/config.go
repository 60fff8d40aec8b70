// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlitepool"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "BUREAU_SQL_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the configuration file for bureau-sql and embedders of
// sqlitedb.
type Config struct {
	Environment Environment `yaml:"environment"`

	Database DatabaseConfig `yaml:"database"`
	Cursor   CursorConfig   `yaml:"cursor"`
	Export   ExportConfig   `yaml:"export"`

	// Per-environment overrides, applied after the base sections.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// DatabaseConfig describes the database file and its pool.
type DatabaseConfig struct {
	// Path is the database file. Empty or ":memory:" opens a private
	// temporary database. ${VAR} and ${VAR:-default} are expanded.
	Path string `yaml:"path"`

	ReadOnly bool `yaml:"read_only"`
	WAL      bool `yaml:"wal"`

	// Create creates the file if it does not exist.
	Create bool `yaml:"create"`

	// MaxSecondaryConnections caps the read connections opened beside
	// the primary. Zero picks the pool default; negative disables
	// secondaries.
	MaxSecondaryConnections int `yaml:"max_secondary_connections"`

	Label       string `yaml:"label"`
	ForeignKeys bool   `yaml:"foreign_keys"`

	// BusyTimeout and BusyLogInterval are Go duration strings ("5s").
	BusyTimeout     string `yaml:"busy_timeout"`
	BusyLogInterval string `yaml:"busy_log_interval"`
}

// CursorConfig sizes query result windows.
type CursorConfig struct {
	// WindowSize is the cursor window capacity in bytes.
	WindowSize int `yaml:"window_size"`
}

// ExportConfig sets defaults for bureau-sql export.
type ExportConfig struct {
	// Compression is none, lz4, or zstd.
	Compression string `yaml:"compression"`
}

// Overrides holds the fields an environment section may change. Nil
// fields keep the base value.
type Overrides struct {
	Database *DatabaseOverrides `yaml:"database,omitempty"`
	Cursor   *CursorConfig      `yaml:"cursor,omitempty"`
	Export   *ExportConfig      `yaml:"export,omitempty"`
}

// DatabaseOverrides uses pointers so that an override can set a flag
// to false.
type DatabaseOverrides struct {
	Path                    *string `yaml:"path,omitempty"`
	ReadOnly                *bool   `yaml:"read_only,omitempty"`
	WAL                     *bool   `yaml:"wal,omitempty"`
	Create                  *bool   `yaml:"create,omitempty"`
	MaxSecondaryConnections *int    `yaml:"max_secondary_connections,omitempty"`
	ForeignKeys             *bool   `yaml:"foreign_keys,omitempty"`
	BusyTimeout             *string `yaml:"busy_timeout,omitempty"`
	BusyLogInterval         *string `yaml:"busy_log_interval,omitempty"`
}

// Default returns the base configuration that a file is merged into.
func Default() *Config {
	return &Config{
		Environment: Development,
		Database: DatabaseConfig{
			WAL:             true,
			Create:          true,
			ForeignKeys:     true,
			BusyTimeout:     sqlitepool.DefaultBusyTimeout.String(),
			BusyLogInterval: sqlitepool.DefaultBusyLogInterval.String(),
		},
		Cursor: CursorConfig{WindowSize: cursorwindow.DefaultSize},
		Export: ExportConfig{Compression: "zstd"},
	}
}

// Load loads the file named by BUREAU_SQL_CONFIG. There is no default
// location: if the variable is unset, Load fails.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a bureau-sql config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads the configuration at path, applies the section for
// its environment, and expands variables in the database path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.Database.Path = expandVars(cfg.Database.Path)
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production never creates a database it expected to find,
		// unless its own section says create.
		c.Database.Create = false
	}
	if overrides == nil {
		return
	}

	if database := overrides.Database; database != nil {
		setIf(&c.Database.Path, database.Path)
		setIf(&c.Database.ReadOnly, database.ReadOnly)
		setIf(&c.Database.WAL, database.WAL)
		setIf(&c.Database.Create, database.Create)
		setIf(&c.Database.MaxSecondaryConnections, database.MaxSecondaryConnections)
		setIf(&c.Database.ForeignKeys, database.ForeignKeys)
		setIf(&c.Database.BusyTimeout, database.BusyTimeout)
		setIf(&c.Database.BusyLogInterval, database.BusyLogInterval)
	}
	if overrides.Cursor != nil && overrides.Cursor.WindowSize != 0 {
		c.Cursor.WindowSize = overrides.Cursor.WindowSize
	}
	if overrides.Export != nil && overrides.Export.Compression != "" {
		c.Export.Compression = overrides.Export.Compression
	}
}

func setIf[T any](destination *T, value *T) {
	if value != nil {
		*destination = *value
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

var compressionNames = []string{"none", "lz4", "zstd"}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if _, err := parseDuration("database.busy_timeout", c.Database.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("database.busy_log_interval", c.Database.BusyLogInterval); err != nil {
		errs = append(errs, err)
	}
	if c.Cursor.WindowSize < 0 {
		errs = append(errs, fmt.Errorf("cursor.window_size must not be negative, got %d", c.Cursor.WindowSize))
	}
	if !slices.Contains(compressionNames, c.Export.Compression) {
		errs = append(errs, fmt.Errorf("export.compression must be one of: %v", compressionNames))
	}

	return errors.Join(errs...)
}

// PoolConfig converts the database section into a pool configuration
// that logs to logger.
func (c *Config) PoolConfig(logger *slog.Logger) (sqlitepool.Config, error) {
	busyTimeout, err := parseDuration("database.busy_timeout", c.Database.BusyTimeout)
	if err != nil {
		return sqlitepool.Config{}, err
	}
	busyLogInterval, err := parseDuration("database.busy_log_interval", c.Database.BusyLogInterval)
	if err != nil {
		return sqlitepool.Config{}, err
	}

	flags := sqlitepool.OpenReadWrite
	if c.Database.ReadOnly {
		flags |= sqlitepool.OpenReadOnly
	}
	if c.Database.WAL {
		flags |= sqlitepool.EnableWAL
	}
	// A read-only open cannot create the file.
	if c.Database.Create && !c.Database.ReadOnly {
		flags |= sqlitepool.CreateIfNecessary
	}

	return sqlitepool.Config{
		Path:                    c.Database.Path,
		Flags:                   flags,
		MaxSecondaryConnections: c.Database.MaxSecondaryConnections,
		Label:                   c.Database.Label,
		BusyTimeout:             busyTimeout,
		ForeignKeys:             c.Database.ForeignKeys,
		BusyLogInterval:         busyLogInterval,
		Logger:                  logger,
	}, nil
}

// parseDuration treats an empty string as zero so the pool default
// applies.
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, value)
	}
	return duration, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/sqlsession/lib/clock"
)

// OpenFlags selects how the database file is opened.
type OpenFlags uint32

// OpenReadWrite is the zero value: the primary accepts writes.
const OpenReadWrite OpenFlags = 0

const (
	// OpenReadOnly opens every connection read-only. Writes fail with
	// an error matching sqlerr.ErrReadOnlyViolation.
	OpenReadOnly OpenFlags = 1 << iota

	// EnableWAL puts the database in write-ahead logging mode, which
	// allows readers on secondary connections to run alongside the
	// writer.
	EnableWAL

	// CreateIfNecessary creates the database file if it does not
	// exist. Ignored for read-only pools.
	CreateIfNecessary
)

// ReadOnly reports whether OpenReadOnly is set.
func (f OpenFlags) ReadOnly() bool { return f&OpenReadOnly != 0 }

// WAL reports whether EnableWAL is set.
func (f OpenFlags) WAL() bool { return f&EnableWAL != 0 }

func (f OpenFlags) String() string {
	var parts []string
	if f.ReadOnly() {
		parts = append(parts, "read-only")
	} else {
		parts = append(parts, "read-write")
	}
	if f.WAL() {
		parts = append(parts, "wal")
	}
	if f&CreateIfNecessary != 0 {
		parts = append(parts, "create")
	}
	return strings.Join(parts, "|")
}

// ConnectionFlags describe what an Acquire caller needs.
type ConnectionFlags uint32

const (
	// FlagPrimaryConnectionAffinity requests the primary connection.
	// Writers must set it.
	FlagPrimaryConnectionAffinity ConnectionFlags = 1 << iota

	// FlagInteractive queues the caller ahead of non-interactive
	// waiters. Use it for work a user is waiting on.
	FlagInteractive
)

func (f ConnectionFlags) wantsPrimary() bool { return f&FlagPrimaryConnectionAffinity != 0 }

func (f ConnectionFlags) interactive() bool { return f&FlagInteractive != 0 }

const (
	// DefaultMaxSecondaryConnections is the secondary limit used under
	// write-ahead logging when Config.MaxSecondaryConnections is zero.
	DefaultMaxSecondaryConnections = 4

	// DefaultBusyTimeout is the engine busy timeout used when
	// Config.BusyTimeout is zero.
	DefaultBusyTimeout = 5 * time.Second

	// DefaultBusyLogInterval is the period of "pool busy" warnings used
	// when Config.BusyLogInterval is zero.
	DefaultBusyLogInterval = 30 * time.Second

	// MemoryPath is the path of a private temporary database. An empty
	// Path is treated the same way.
	MemoryPath = ":memory:"
)

// Config holds the parameters of a connection pool.
type Config struct {
	// Path is the database file. Empty or ":memory:" selects a private
	// temporary database.
	Path string

	// Flags controls read-only mode, write-ahead logging, and file
	// creation.
	Flags OpenFlags

	// MaxSecondaryConnections bounds the secondary connections. Zero
	// selects DefaultMaxSecondaryConnections under write-ahead logging
	// and none otherwise. Negative means none.
	MaxSecondaryConnections int

	// Label names the pool in log messages and connection metadata.
	// Defaults to Path.
	Label string

	// BusyTimeout is how long the engine waits on a lock held by
	// another connection before returning SQLITE_BUSY. Zero selects
	// DefaultBusyTimeout; negative disables waiting.
	BusyTimeout time.Duration

	// ForeignKeys enables foreign key enforcement on every connection.
	ForeignKeys bool

	// BusyLogInterval is the period of warnings logged while an
	// Acquire is blocked. Zero selects DefaultBusyLogInterval; negative
	// disables them.
	BusyLogInterval time.Duration

	// Logger receives pool lifecycle and contention messages. If nil,
	// a no-op logger is used.
	Logger *slog.Logger

	// Clock drives the busy warnings. Defaults to clock.Real().
	Clock clock.Clock

	// OnConnect runs once per connection after the pragmas. If it
	// fails the connection is closed and the error is returned to the
	// caller that triggered the open.
	OnConnect func(*Connection) error
}

// IsTemporary reports whether path names a private temporary database.
func IsTemporary(path string) bool {
	return path == "" || path == MemoryPath
}

func (c Config) withDefaults() Config {
	if c.Label == "" {
		c.Label = c.Path
		if IsTemporary(c.Path) {
			c.Label = MemoryPath
		}
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
	if c.BusyTimeout < 0 {
		c.BusyTimeout = 0
	}
	if c.BusyLogInterval == 0 {
		c.BusyLogInterval = DefaultBusyLogInterval
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// secondaryLimit returns the effective maximum number of secondary
// connections.
func (c Config) secondaryLimit() int {
	switch {
	case IsTemporary(c.Path), c.MaxSecondaryConnections < 0:
		return 0
	case c.MaxSecondaryConnections == 0 && c.Flags.WAL():
		return DefaultMaxSecondaryConnections
	default:
		return c.MaxSecondaryConnections
	}
}

// secondariesReadOnly reports whether secondaries must be opened
// read-only. Without write-ahead logging a second writer would only
// contend with the primary for the database lock.
func (c Config) secondariesReadOnly() bool {
	return c.Flags.ReadOnly() || !c.Flags.WAL()
}

// needsReopen reports whether moving from c to next invalidates open
// connections. CreateIfNecessary only matters when a file is opened,
// and the per-connection settings are applied in place.
func (c Config) needsReopen(next Config) bool {
	return c.Flags&^CreateIfNecessary != next.Flags&^CreateIfNecessary
}

// connectionSettings are the pragmas that can change on an open
// connection.
type connectionSettings struct {
	busyTimeout time.Duration
	foreignKeys bool
}

func (c Config) settings() connectionSettings {
	return connectionSettings{busyTimeout: c.BusyTimeout, foreignKeys: c.ForeignKeys}
}

func (s connectionSettings) pragmas() []string {
	return []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeout/time.Millisecond),
		"PRAGMA foreign_keys=" + onOff(s.foreignKeys),
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool manages the physical SQLite connections behind a
// database: one primary connection that performs writes and a bounded
// set of secondary connections for concurrent reads.
//
// It wraps zombiezen.com/go/sqlite with the single-writer discipline
// SQLite wants. The primary is opened eagerly by [Open] and reused for
// the life of the pool; callers that need to write ask for it with
// [FlagPrimaryConnectionAffinity]. Other callers get an idle secondary,
// or a newly opened one while the pool is below its limit, and block
// otherwise. Under write-ahead logging secondaries are read-write and
// the default limit is [DefaultMaxSecondaryConnections]; in rollback
// journal mode the default is no secondaries at all and every request
// is served by the primary. A private temporary database (empty path
// or ":memory:") never has secondaries, since each connection would
// see a different database.
//
// Blocked callers are served in arrival order, except that callers
// passing [FlagInteractive] are queued ahead of the rest. A blocked
// [Pool.Acquire] returns when its context ends (with an error matching
// sqlerr.ErrCancelled) or the pool closes (sqlerr.ErrClosed), and logs
// a warning every BusyLogInterval while it waits.
//
// A [Connection] is owned by exactly one caller between Acquire and
// [Pool.Release]. Its Execute methods take a context; cancelling it
// interrupts the running statement through the engine's interrupt
// hook.
//
// # Pragmas
//
// Every connection gets:
//
//   - busy_timeout from Config.BusyTimeout (5 seconds by default), so a
//     write lock held by another process is waited for instead of
//     failing with SQLITE_BUSY.
//   - foreign_keys from Config.ForeignKeys.
//   - temp_store=MEMORY.
//
// Read-write connections additionally set journal_mode (WAL or DELETE)
// and synchronous (NORMAL under WAL, FULL otherwise). Config.OnConnect
// runs last, for schema creation or function registration.
//
// # Reconfiguration
//
// [Pool.Reconfigure] changes settings, flags and limits on a live pool.
// BusyTimeout and ForeignKeys are set with PRAGMAs on the existing
// connections. Flag changes need a reopen and bump a generation
// counter: an idle primary is reopened immediately, idle secondaries
// are closed, and connections checked out under the old generation are
// closed when released. Toggling write-ahead logging requires that
// nothing is checked out. A temporary database rejects flag changes,
// since reopening it would discard its contents.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/bureau/ledger/ledger.db",
//	    Flags:  sqlitepool.EnableWAL | sqlitepool.CreateIfNecessary,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Acquire(ctx, "insert entry", sqlitepool.FlagPrimaryConnectionAffinity)
//	if err != nil {
//	    return err
//	}
//	defer pool.Release(conn)
//	rowID, err := conn.ExecuteForLastInsertedRowID(ctx, "INSERT INTO entries (body) VALUES (?)", []any{body})
package sqlitepool

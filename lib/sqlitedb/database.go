// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
	"github.com/bureau-foundation/sqlsession/lib/sqlitepool"
	"github.com/bureau-foundation/sqlsession/lib/sqlsession"
)

const (
	readFlags  sqlitepool.ConnectionFlags = 0
	writeFlags                            = sqlitepool.FlagPrimaryConnectionAffinity
)

// Database is a pool with a default session. See the package
// documentation for the concurrency model.
type Database struct {
	mu      sync.Mutex
	pool    *sqlitepool.Pool
	session *sqlsession.Session
	logger  *slog.Logger

	// ownsPool is false for handles returned by Fork.
	ownsPool   bool
	windowSize int
	closed     bool
}

// Open opens a pool with cfg and wraps it.
func Open(cfg sqlitepool.Config) (*Database, error) {
	pool, err := sqlitepool.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: %w", err)
	}
	return newDatabase(pool, true), nil
}

// Create opens a private temporary database that disappears on Close.
func Create() (*Database, error) {
	return OpenDatabase("", sqlitepool.CreateIfNecessary)
}

// OpenDatabase opens the database at path with flags.
func OpenDatabase(path string, flags sqlitepool.OpenFlags) (*Database, error) {
	return Open(sqlitepool.Config{Path: path, Flags: flags})
}

// OpenOrCreateDatabase opens path read-write, creating the file if it
// does not exist.
func OpenOrCreateDatabase(path string) (*Database, error) {
	return OpenDatabase(path, sqlitepool.CreateIfNecessary)
}

// OpenOrCreateDatabaseFile is OpenOrCreateDatabase on file's path.
// The database opens its own handles; file may be closed afterwards.
func OpenOrCreateDatabaseFile(file *os.File) (*Database, error) {
	return OpenOrCreateDatabase(file.Name())
}

func newDatabase(pool *sqlitepool.Pool, ownsPool bool) *Database {
	return &Database{
		pool:       pool,
		session:    sqlsession.New(pool),
		logger:     pool.Config().Logger,
		ownsPool:   ownsPool,
		windowSize: cursorwindow.DefaultSize,
	}
}

// Fork returns a handle on the same pool with its own session, for a
// goroutine that needs transactions independent of this one. Closing
// the fork does not close the pool.
func (db *Database) Fork() (*Database, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, errDatabaseClosed()
	}
	fork := newDatabase(db.pool, false)
	fork.windowSize = db.windowSize
	return fork, nil
}

// Path returns the configured database path, empty for a temporary
// database.
func (db *Database) Path() string { return db.pool.Config().Path }

// IsReadOnly reports whether the database was opened read-only.
func (db *Database) IsReadOnly() bool { return db.pool.Config().Flags.ReadOnly() }

// IsWriteAheadLoggingEnabled reports whether the pool runs in WAL mode.
func (db *Database) IsWriteAheadLoggingEnabled() bool { return db.pool.Config().Flags.WAL() }

// Pool exposes the underlying pool.
func (db *Database) Pool() *sqlitepool.Pool { return db.pool }

// SetCursorWindowSize sets the window capacity in bytes for cursors
// created after the call. Zero or less restores the default.
func (db *Database) SetCursorWindowSize(bytes int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if bytes <= 0 {
		bytes = cursorwindow.DefaultSize
	}
	db.windowSize = bytes
}

// ReopenReadWrite switches a read-only database to read-write. It is a
// no-op when the database is already writable.
func (db *Database) ReopenReadWrite() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed()
	}
	cfg := db.pool.Config()
	if !cfg.Flags.ReadOnly() {
		return nil
	}
	cfg.Flags &^= sqlitepool.OpenReadOnly
	if err := db.pool.Reconfigure(cfg); err != nil {
		return fmt.Errorf("sqlitedb: reopen read-write: %w", err)
	}
	return nil
}

// EnableWriteAheadLogging switches the pool to WAL mode. It reports
// false without error for read-only and temporary databases, where
// WAL does not apply. The database must have no transaction open.
func (db *Database) EnableWriteAheadLogging() (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return false, errDatabaseClosed()
	}
	cfg := db.pool.Config()
	switch {
	case cfg.Flags.WAL():
		return true, nil
	case cfg.Flags.ReadOnly():
		return false, nil
	case sqlitepool.IsTemporary(cfg.Path):
		db.logger.Info("write-ahead logging is not supported for temporary databases")
		return false, nil
	}
	cfg.Flags |= sqlitepool.EnableWAL
	if err := db.pool.Reconfigure(cfg); err != nil {
		return false, fmt.Errorf("sqlitedb: enable write-ahead logging: %w", err)
	}
	return true, nil
}

// DisableWriteAheadLogging switches the pool back to a rollback
// journal.
func (db *Database) DisableWriteAheadLogging() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed()
	}
	cfg := db.pool.Config()
	if !cfg.Flags.WAL() {
		return nil
	}
	cfg.Flags &^= sqlitepool.EnableWAL
	if err := db.pool.Reconfigure(cfg); err != nil {
		return fmt.Errorf("sqlitedb: disable write-ahead logging: %w", err)
	}
	return nil
}

// Version returns the schema version stored in PRAGMA user_version.
func (db *Database) Version(ctx context.Context) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, errDatabaseClosed()
	}
	return db.session.ExecuteForLong(ctx, "PRAGMA user_version", nil, readFlags)
}

// SetVersion stores version in PRAGMA user_version.
func (db *Database) SetVersion(ctx context.Context, version int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed()
	}
	return db.session.Execute(ctx, fmt.Sprintf("PRAGMA user_version = %d", version), nil, writeFlags)
}

// ExecSQL runs a single statement that returns no rows. BEGIN, COMMIT,
// and ROLLBACK operate on the database's transaction.
func (db *Database) ExecSQL(ctx context.Context, query string, args ...any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed()
	}
	return db.session.Execute(ctx, query, args, writeFlags)
}

// ValidateSQL compiles query without running it and describes the
// result. Syntax errors and unknown tables are reported as
// *sqlerr.SQLError.
func (db *Database) ValidateSQL(ctx context.Context, query string) (sqlitepool.StatementInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return sqlitepool.StatementInfo{}, errDatabaseClosed()
	}
	return db.session.Prepare(ctx, query, readFlags)
}

// BeginTransaction begins an exclusive transaction.
func (db *Database) BeginTransaction(ctx context.Context) error {
	return db.beginTransaction(ctx, sqlsession.TransactionExclusive, nil)
}

// BeginTransactionNonExclusive begins a deferred transaction.
func (db *Database) BeginTransactionNonExclusive(ctx context.Context) error {
	return db.beginTransaction(ctx, sqlsession.TransactionNonExclusive, nil)
}

// BeginTransactionWithListener begins an exclusive transaction that
// reports to listener.
func (db *Database) BeginTransactionWithListener(ctx context.Context, listener sqlsession.Listener) error {
	return db.beginTransaction(ctx, sqlsession.TransactionExclusive, listener)
}

// BeginTransactionWithListenerNonExclusive begins a deferred
// transaction that reports to listener.
func (db *Database) BeginTransactionWithListenerNonExclusive(ctx context.Context, listener sqlsession.Listener) error {
	return db.beginTransaction(ctx, sqlsession.TransactionNonExclusive, listener)
}

func (db *Database) beginTransaction(ctx context.Context, mode sqlsession.TransactionMode, listener sqlsession.Listener) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed()
	}
	return db.session.BeginTransaction(ctx, mode, listener, writeFlags)
}

// SetTransactionSuccessful marks the current transaction to commit.
func (db *Database) SetTransactionSuccessful() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed()
	}
	return db.session.SetTransactionSuccessful()
}

// EndTransaction commits or rolls back the current transaction.
func (db *Database) EndTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed()
	}
	return db.session.EndTransaction(ctx)
}

// InTransaction reports whether the database has a transaction open.
func (db *Database) InTransaction() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.session.HasTransaction()
}

// YieldIfContendedSafely commits and restarts the current transaction
// if another caller is waiting for its connection, sleeping for
// sleepAfterYield in between. Nested transactions never yield.
func (db *Database) YieldIfContendedSafely(ctx context.Context, sleepAfterYield time.Duration) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return false, errDatabaseClosed()
	}
	return db.session.YieldTransaction(ctx, sleepAfterYield)
}

// Close rolls back any open transaction and, unless this is a fork,
// closes the pool. Closing twice is a no-op.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	err := db.session.Close(context.Background())
	if db.ownsPool {
		err = errors.Join(err, db.pool.Close())
	}
	return err
}

func errDatabaseClosed() error {
	return fmt.Errorf("sqlitedb: %w: %w", sqlerr.ErrInvalidState, sqlerr.ErrClosed)
}

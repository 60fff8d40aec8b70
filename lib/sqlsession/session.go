// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/sqlsession/lib/clock"
	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
	"github.com/bureau-foundation/sqlsession/lib/sqlitepool"
)

// TransactionMode selects the BEGIN variant for the outermost level.
// Nested levels are savepoints and ignore it.
type TransactionMode int

const (
	// TransactionDeferred takes locks on first use.
	TransactionDeferred TransactionMode = iota

	// TransactionImmediate takes the write lock at BEGIN.
	TransactionImmediate

	// TransactionExclusive takes the write lock at BEGIN and, outside
	// WAL mode, also blocks readers.
	TransactionExclusive
)

// TransactionNonExclusive is the mode used by the "non-exclusive"
// begin variants. It does not take the write lock up front.
const TransactionNonExclusive = TransactionDeferred

func (m TransactionMode) String() string {
	switch m {
	case TransactionDeferred:
		return "deferred"
	case TransactionImmediate:
		return "immediate"
	case TransactionExclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("TransactionMode(%d)", int(m))
	}
}

func (m TransactionMode) beginStatement() string {
	switch m {
	case TransactionImmediate:
		return "BEGIN IMMEDIATE"
	case TransactionExclusive:
		return "BEGIN EXCLUSIVE"
	default:
		return "BEGIN DEFERRED"
	}
}

// maxLabelLength bounds the statement prefix passed to the pool as the
// acquisition label.
const maxLabelLength = 64

type transaction struct {
	mode       TransactionMode
	listener   Listener
	flags      sqlitepool.ConnectionFlags
	savepoint  string
	successful bool
}

// Session is one caller's view of a pool. See the package
// documentation for the transaction model.
type Session struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
	clock  clock.Clock

	conn      *sqlitepool.Connection
	connFlags sqlitepool.ConnectionFlags
	useCount  int

	transactions  []*transaction
	aborted       bool
	nextSavepoint int
	closed        bool
}

// New returns a session over pool. The session logs and sleeps through
// the pool's configured logger and clock.
func New(pool *sqlitepool.Pool) *Session {
	cfg := pool.Config()
	return &Session{
		pool:   pool,
		logger: cfg.Logger,
		clock:  cfg.Clock,
	}
}

// HasTransaction reports whether a transaction is open.
func (s *Session) HasTransaction() bool { return len(s.transactions) > 0 }

// HasNestedTransaction reports whether more than one level is open.
func (s *Session) HasNestedTransaction() bool { return len(s.transactions) > 1 }

// TransactionDepth is the number of open levels.
func (s *Session) TransactionDepth() int { return len(s.transactions) }

// HasConnection reports whether the session currently holds a pool
// connection.
func (s *Session) HasConnection() bool { return s.conn != nil }

// IsAborted reports whether a statement failure has doomed the open
// transaction.
func (s *Session) IsAborted() bool { return s.aborted }

// BeginTransaction opens a transaction level. The outermost level
// acquires a connection with flags and holds it until the matching
// EndTransaction; nested levels reuse it.
func (s *Session) BeginTransaction(ctx context.Context, mode TransactionMode, listener Listener,
	flags sqlitepool.ConnectionFlags,
) error {
	if err := s.checkUsable(); err != nil {
		return err
	}
	if err := s.checkNotMarked("begin a transaction"); err != nil {
		return err
	}
	return s.begin(ctx, mode, listener, flags)
}

func (s *Session) begin(ctx context.Context, mode TransactionMode, listener Listener,
	flags sqlitepool.ConnectionFlags,
) error {
	if err := s.acquire(ctx, mode.beginStatement(), flags); err != nil {
		return err
	}

	level := &transaction{mode: mode, listener: listener, flags: flags}
	outermost := len(s.transactions) == 0
	var err error
	if outermost {
		err = s.conn.Execute(ctx, mode.beginStatement(), nil)
	} else {
		s.nextSavepoint++
		level.savepoint = fmt.Sprintf("sp_%d", s.nextSavepoint)
		err = s.conn.Execute(ctx, "SAVEPOINT "+level.savepoint, nil)
	}
	if err != nil {
		return errors.Join(err, s.release())
	}

	if listener != nil {
		if err := listener.OnBegin(); err != nil {
			undo := s.rollbackLevel(context.WithoutCancel(ctx), level, outermost)
			return errors.Join(err, undo, s.release())
		}
	}

	s.transactions = append(s.transactions, level)
	return nil
}

// SetTransactionSuccessful marks the innermost level to commit when it
// ends. No further statements may run on the level after marking.
func (s *Session) SetTransactionSuccessful() error {
	if err := s.checkUsable(); err != nil {
		return err
	}
	top := s.top()
	if top == nil {
		return sqlerr.Invalid("no transaction is active")
	}
	if top.successful {
		return sqlerr.Invalid("transaction was already marked successful")
	}
	top.successful = true
	return nil
}

// EndTransaction closes the innermost level, committing it if it was
// marked successful and rolling it back otherwise. The connection use
// taken by BeginTransaction is released even when the end fails.
func (s *Session) EndTransaction(ctx context.Context) error {
	if s.closed {
		return errSessionClosed()
	}
	return s.end(ctx, false)
}

func (s *Session) end(ctx context.Context, yielding bool) error {
	top := s.top()
	if top == nil {
		return sqlerr.Invalid("no transaction is active")
	}
	s.transactions = s.transactions[:len(s.transactions)-1]
	outermost := len(s.transactions) == 0

	successful := (top.successful || yielding) && !s.aborted
	var listenerErr error
	if top.listener != nil {
		if successful {
			if err := top.listener.OnCommit(); err != nil {
				listenerErr = err
				successful = false
			}
		} else {
			top.listener.OnRollback()
		}
	}

	var err error
	if successful {
		err = s.commitLevel(ctx, top, outermost)
	} else {
		err = s.rollbackLevel(context.WithoutCancel(ctx), top, outermost)
	}
	if outermost {
		s.aborted = false
	}
	return errors.Join(listenerErr, err, s.release())
}

func (s *Session) commitLevel(ctx context.Context, level *transaction, outermost bool) error {
	if !outermost {
		return s.conn.Execute(ctx, "RELEASE "+level.savepoint, nil)
	}
	err := s.conn.Execute(ctx, "COMMIT", nil)
	if err == nil {
		return nil
	}
	s.logger.Warn("commit failed, rolling back",
		"connection", s.conn.String(),
		"error", err,
	)
	return errors.Join(err, s.rollbackLevel(context.WithoutCancel(ctx), level, true))
}

// rollbackLevel undoes one level. When SQLite has already rolled the
// whole transaction back there is nothing left to undo.
func (s *Session) rollbackLevel(ctx context.Context, level *transaction, outermost bool) error {
	if !s.conn.InTransaction() {
		return nil
	}
	if outermost {
		return s.conn.Execute(ctx, "ROLLBACK", nil)
	}
	if err := s.conn.Execute(ctx, "ROLLBACK TO "+level.savepoint, nil); err != nil {
		return err
	}
	return s.conn.Execute(ctx, "RELEASE "+level.savepoint, nil)
}

// YieldTransaction commits the outermost level early when another
// caller is waiting for its connection, sleeps for sleepAfterYield,
// and begins a fresh level with the same mode, listener, and flags.
// It reports whether it yielded. Nested transactions never yield.
func (s *Session) YieldTransaction(ctx context.Context, sleepAfterYield time.Duration) (bool, error) {
	if err := s.checkUsable(); err != nil {
		return false, err
	}
	top := s.top()
	if top == nil {
		return false, sqlerr.Invalid("no transaction is active")
	}
	if err := s.checkNotMarked("yield a transaction"); err != nil {
		return false, err
	}
	if len(s.transactions) > 1 {
		return false, nil
	}
	if !s.pool.ShouldYieldConnection(s.conn, s.connFlags) {
		return false, nil
	}

	s.logger.Debug("yielding transaction",
		"connection", s.conn.String(),
		"sleep", sleepAfterYield,
	)
	if err := s.end(ctx, true); err != nil {
		return false, err
	}
	if sleepAfterYield > 0 {
		s.clock.Sleep(sleepAfterYield)
	}
	if err := s.begin(ctx, top.mode, top.listener, top.flags); err != nil {
		return true, err
	}
	return true, nil
}

// Close rolls back every open level and marks the session unusable.
// Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	var errs []error
	for _, level := range s.transactions {
		level.successful = false
	}
	for len(s.transactions) > 0 {
		errs = append(errs, s.end(ctx, false))
	}
	s.closed = true
	return errors.Join(errs...)
}

// Prepare compiles query and describes it without running it.
func (s *Session) Prepare(ctx context.Context, query string, flags sqlitepool.ConnectionFlags) (sqlitepool.StatementInfo, error) {
	return withConnection(s, ctx, query, flags, func(conn *sqlitepool.Connection) (sqlitepool.StatementInfo, error) {
		return conn.Prepare(query)
	})
}

// Execute runs query for its side effects. BEGIN, COMMIT, and ROLLBACK
// statements are routed through the session's own transaction state:
// BEGIN opens an exclusive level, COMMIT marks and ends the innermost
// level, and ROLLBACK ends it unmarked.
func (s *Session) Execute(ctx context.Context, query string, args []any, flags sqlitepool.ConnectionFlags) error {
	if handled, err := s.executeSpecial(ctx, query, flags); handled {
		return err
	}
	_, err := withConnection(s, ctx, query, flags, func(conn *sqlitepool.Connection) (struct{}, error) {
		return struct{}{}, conn.Execute(ctx, query, args)
	})
	return err
}

// ExecuteForLong returns the first column of the first row as an
// integer.
func (s *Session) ExecuteForLong(ctx context.Context, query string, args []any, flags sqlitepool.ConnectionFlags) (int64, error) {
	if handled, err := s.executeSpecial(ctx, query, flags); handled {
		return 0, err
	}
	return withConnection(s, ctx, query, flags, func(conn *sqlitepool.Connection) (int64, error) {
		return conn.ExecuteForLong(ctx, query, args)
	})
}

// ExecuteForString returns the first column of the first row as text.
func (s *Session) ExecuteForString(ctx context.Context, query string, args []any, flags sqlitepool.ConnectionFlags) (string, error) {
	if handled, err := s.executeSpecial(ctx, query, flags); handled {
		return "", err
	}
	return withConnection(s, ctx, query, flags, func(conn *sqlitepool.Connection) (string, error) {
		return conn.ExecuteForString(ctx, query, args)
	})
}

// ExecuteForBlob returns the first column of the first row as a blob.
func (s *Session) ExecuteForBlob(ctx context.Context, query string, args []any, flags sqlitepool.ConnectionFlags) (*sqlitepool.Blob, error) {
	if handled, err := s.executeSpecial(ctx, query, flags); handled {
		return nil, err
	}
	return withConnection(s, ctx, query, flags, func(conn *sqlitepool.Connection) (*sqlitepool.Blob, error) {
		return conn.ExecuteForBlob(ctx, query, args)
	})
}

// ExecuteForChangedRowCount returns the number of rows the statement
// changed.
func (s *Session) ExecuteForChangedRowCount(ctx context.Context, query string, args []any, flags sqlitepool.ConnectionFlags) (int, error) {
	if handled, err := s.executeSpecial(ctx, query, flags); handled {
		return 0, err
	}
	return withConnection(s, ctx, query, flags, func(conn *sqlitepool.Connection) (int, error) {
		return conn.ExecuteForChangedRowCount(ctx, query, args)
	})
}

// ExecuteForLastInsertedRowID returns the rowid of the inserted row,
// or -1 when the statement changed nothing.
func (s *Session) ExecuteForLastInsertedRowID(ctx context.Context, query string, args []any, flags sqlitepool.ConnectionFlags) (int64, error) {
	if handled, err := s.executeSpecial(ctx, query, flags); handled {
		return 0, err
	}
	return withConnection(s, ctx, query, flags, func(conn *sqlitepool.Connection) (int64, error) {
		return conn.ExecuteForLastInsertedRowID(ctx, query, args)
	})
}

// ExecuteForCursorWindow fills window with query results. See
// sqlitepool.Connection.ExecuteForCursorWindow.
func (s *Session) ExecuteForCursorWindow(ctx context.Context, query string, args []any,
	window *cursorwindow.Window, startPosition, requiredPosition int, countAllRows bool,
	flags sqlitepool.ConnectionFlags,
) (int, error) {
	if handled, err := s.executeSpecial(ctx, query, flags); handled {
		if window != nil {
			window.Clear()
		}
		return 0, err
	}
	return withConnection(s, ctx, query, flags, func(conn *sqlitepool.Connection) (int, error) {
		return conn.ExecuteForCursorWindow(ctx, query, args, window, startPosition, requiredPosition, countAllRows)
	})
}

func (s *Session) executeSpecial(ctx context.Context, query string, flags sqlitepool.ConnectionFlags) (bool, error) {
	switch sqlitepool.ClassifyStatement(query) {
	case sqlitepool.StatementBegin:
		return true, s.BeginTransaction(ctx, TransactionExclusive, nil, flags)
	case sqlitepool.StatementCommit:
		if err := s.SetTransactionSuccessful(); err != nil {
			return true, err
		}
		return true, s.EndTransaction(ctx)
	case sqlitepool.StatementAbort:
		return true, s.EndTransaction(ctx)
	}
	return false, nil
}

// withConnection runs fn on the session's connection, acquiring one
// for the duration of the call when no transaction holds one.
func withConnection[T any](s *Session, ctx context.Context, query string, flags sqlitepool.ConnectionFlags,
	fn func(*sqlitepool.Connection) (T, error),
) (T, error) {
	var zero T
	if err := s.checkUsable(); err != nil {
		return zero, err
	}
	if err := s.checkNotMarked("execute a statement"); err != nil {
		return zero, err
	}
	if err := s.acquire(ctx, query, flags); err != nil {
		return zero, err
	}
	result, err := fn(s.conn)
	if err != nil && len(s.transactions) > 0 &&
		(sqlerr.AbortsTransaction(err) || !s.conn.InTransaction()) {
		s.aborted = true
		s.logger.Warn("transaction aborted by statement failure",
			"connection", s.conn.String(),
			"error", err,
		)
	}
	if releaseErr := s.release(); releaseErr != nil {
		return result, errors.Join(err, releaseErr)
	}
	return result, err
}

func (s *Session) acquire(ctx context.Context, query string, flags sqlitepool.ConnectionFlags) error {
	if s.conn == nil {
		conn, err := s.pool.Acquire(ctx, label(query), flags)
		if err != nil {
			return err
		}
		s.conn = conn
		s.connFlags = flags
	}
	s.useCount++
	return nil
}

func (s *Session) release() error {
	if s.useCount == 0 {
		return nil
	}
	s.useCount--
	if s.useCount > 0 {
		return nil
	}
	conn := s.conn
	s.conn = nil
	return s.pool.Release(conn)
}

func (s *Session) top() *transaction {
	if len(s.transactions) == 0 {
		return nil
	}
	return s.transactions[len(s.transactions)-1]
}

func (s *Session) checkUsable() error {
	if s.closed {
		return errSessionClosed()
	}
	if s.aborted {
		return sqlerr.Invalid("transaction was aborted; end it before doing more work")
	}
	return nil
}

func (s *Session) checkNotMarked(action string) error {
	if top := s.top(); top != nil && top.successful {
		return sqlerr.Invalid("cannot %s after the current transaction was marked successful", action)
	}
	return nil
}

func errSessionClosed() error {
	return fmt.Errorf("sqlsession: %w: %w", sqlerr.ErrInvalidState, sqlerr.ErrClosed)
}

func label(query string) string {
	if len(query) <= maxLabelLength {
		return query
	}
	return query[:maxLabelLength] + "..."
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlsession runs statements and transactions for one logical
// caller on top of a sqlitepool.Pool.
//
// Outside a transaction each Execute call acquires a connection with
// the caller's sqlitepool.ConnectionFlags, runs the statement, and
// releases the connection. [Session.BeginTransaction] pins a connection
// until the matching [Session.EndTransaction]; statements in between
// run on it regardless of their flags. The outermost level issues
// BEGIN DEFERRED, IMMEDIATE, or EXCLUSIVE; nested levels use
// SAVEPOINT, so an inner level can roll back without losing the outer
// one.
//
// A level commits only if [Session.SetTransactionSuccessful] was called
// on it, and nothing else may run between marking and ending the level.
// A [Listener] attached to a level hears OnBegin after BEGIN, then
// either OnCommit or OnRollback before the level ends; an error from
// OnCommit turns the commit into a rollback.
//
// When a statement fails in a way that makes SQLite roll the
// transaction back on its own (disk full, I/O error, interrupt,
// cancellation), the session is aborted: further work fails with
// sqlerr.ErrInvalidState and each EndTransaction unwinds one level
// until the outermost one rolls back and the session is usable again.
// Other statement failures leave the transaction open; the caller
// still decides whether to mark it successful.
//
// A Session is not safe for concurrent use.
//
//	session := sqlsession.New(pool)
//	defer session.Close(ctx)
//
//	if err := session.BeginTransaction(ctx, sqlsession.TransactionImmediate, nil,
//	    sqlitepool.FlagPrimaryConnectionAffinity); err != nil {
//	    return err
//	}
//	if err := session.Execute(ctx, "INSERT INTO entries (body) VALUES (?)", []any{body}, 0); err != nil {
//	    session.EndTransaction(ctx)
//	    return err
//	}
//	if err := session.SetTransactionSuccessful(); err != nil {
//	    return err
//	}
//	return session.EndTransaction(ctx)
package sqlsession

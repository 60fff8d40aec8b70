// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitedb is the convenience surface over sqlitepool and
// sqlsession: one pool plus a default session, with table-oriented
// insert, update, delete, and query helpers.
//
// Writes run with primary connection affinity; reads outside a
// transaction run on secondary connections, so under write-ahead
// logging they proceed alongside a writer. Inside a transaction every
// call runs on the transaction's connection and sees its uncommitted
// changes.
//
// A Database serializes its calls with a mutex, and its transaction is
// shared by every goroutine using it. Goroutines that need independent
// transactions take their own handle with [Database.Fork].
//
// Query results come back as a [Cursor]. A cursor does not hold a
// connection: it copies rows into a cursorwindow.Window and re-runs
// the query to refill the window when the caller moves outside it.
package sqlitedb

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlerr defines the error taxonomy shared by the connection
// pool, sessions, cursor windows, and the database facade.
//
// There are two kinds of errors. Engine errors come back from SQLite
// while compiling or stepping a statement and are reported as
// [*SQLError], which carries the engine's result code and diagnostic
// text. Usage errors come from this module's own bookkeeping and are
// sentinels matched with [errors.Is]:
//
//   - [ErrInvalidState]: API misuse. Ending a transaction that was
//     never begun, releasing a connection the pool did not hand out,
//     reading a closed cursor window.
//   - [ErrClosed]: the pool or window has been shut down.
//   - [ErrCancelled]: the caller's context ended while the operation
//     was blocked on the pool or running inside the engine.
//
// A write attempted on a connection opened read-only is an engine
// error with primary code SQLITE_READONLY. It is still a [*SQLError],
// but it also matches [ErrReadOnlyViolation] so callers can branch on
// it without inspecting codes or message text:
//
//	if errors.Is(err, sqlerr.ErrReadOnlyViolation) {
//	    // reopen read-write, or report a permissions problem
//	}
//
// [*OpenError] reports that the database file could not be opened with
// the requested flags.
package sqlerr

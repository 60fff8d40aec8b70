// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlerr

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
)

var (
	// ErrInvalidState reports API misuse: an operation that is not
	// valid in the current state of the pool, session, or window.
	ErrInvalidState = errors.New("invalid state")

	// ErrClosed reports an operation attempted after the pool or
	// window was closed.
	ErrClosed = errors.New("closed")

	// ErrCancelled reports that the caller's context ended before the
	// operation completed.
	ErrCancelled = errors.New("operation cancelled")

	// ErrReadOnlyViolation matches any *SQLError whose primary result
	// code is SQLITE_READONLY.
	ErrReadOnlyViolation = errors.New("write attempted on a read-only connection")
)

// OpenError reports that a database file could not be opened (or
// created) with the requested flags.
type OpenError struct {
	Path     string
	ReadOnly bool
	Err      error
}

func (e *OpenError) Error() string {
	mode := "read-write"
	if e.ReadOnly {
		mode = "read-only"
	}
	return fmt.Sprintf("opening %s (%s): %v", displayPath(e.Path), mode, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// SQLError is an error reported by the SQL engine while compiling or
// executing a statement.
type SQLError struct {
	// Code is the engine's (possibly extended) result code.
	Code sqlite.ResultCode

	// Message is the engine's diagnostic text.
	Message string

	// SQL is the statement text that failed, if known.
	SQL string
}

func (e *SQLError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (sql: %s)", e.Code, e.Message, e.SQL)
}

// Is reports whether target is ErrReadOnlyViolation and this error
// carries SQLITE_READONLY or one of its extended codes.
func (e *SQLError) Is(target error) bool {
	return target == ErrReadOnlyViolation && e.ReadOnly()
}

// ReadOnly reports whether the engine rejected a write because the
// connection or database is read-only.
func (e *SQLError) ReadOnly() bool {
	return e.Code.ToPrimary() == sqlite.ResultReadOnly
}

// Primary returns the primary result code with extended bits removed.
func (e *SQLError) Primary() sqlite.ResultCode {
	return e.Code.ToPrimary()
}

// FromEngine converts an error returned by the SQLite driver into a
// *SQLError tagged with the statement text. Errors already classified
// by this package pass through unchanged, as does nil.
func FromEngine(err error, query string) error {
	if err == nil {
		return nil
	}
	var existing *SQLError
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrClosed) {
		return err
	}
	return &SQLError{
		Code:    sqlite.ErrCode(err),
		Message: err.Error(),
		SQL:     query,
	}
}

// NoRows returns the error reported when a single-value query produces
// no result row.
func NoRows(query string) error {
	return &SQLError{
		Code:    sqlite.ResultDone,
		Message: "query returned no rows",
		SQL:     query,
	}
}

// Cancelled wraps cause (typically ctx.Err()) so that the result
// matches both ErrCancelled and the context error.
func Cancelled(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// Invalid returns an ErrInvalidState error with a description.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// AbortsTransaction reports whether err is an engine failure after
// which SQLite may have rolled back the enclosing transaction on its
// own. Sessions treat such failures as fatal to the transaction.
func AbortsTransaction(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var sqlError *SQLError
	if !errors.As(err, &sqlError) {
		return false
	}
	switch sqlError.Primary() {
	case sqlite.ResultFull, sqlite.ResultIOErr, sqlite.ResultNoMem,
		sqlite.ResultCorrupt, sqlite.ResultInterrupt:
		return true
	}
	return false
}

func displayPath(path string) string {
	if path == "" {
		return "<temporary>"
	}
	return path
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlerr_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

func TestReadOnlyViolationMatchesSQLError(t *testing.T) {
	err := fmt.Errorf("insert: %w", &sqlerr.SQLError{
		Code:    sqlite.ResultReadOnly,
		Message: "attempt to write a readonly database",
	})

	if !errors.Is(err, sqlerr.ErrReadOnlyViolation) {
		t.Error("read-only SQLError does not match ErrReadOnlyViolation")
	}
	var sqlError *sqlerr.SQLError
	if !errors.As(err, &sqlError) {
		t.Fatal("read-only violation is not a *SQLError")
	}
	if !sqlError.ReadOnly() {
		t.Error("ReadOnly() = false, want true")
	}
}

func TestOtherCodesAreNotReadOnly(t *testing.T) {
	err := &sqlerr.SQLError{Code: sqlite.ResultConstraint, Message: "UNIQUE constraint failed"}
	if errors.Is(err, sqlerr.ErrReadOnlyViolation) {
		t.Error("constraint error matches ErrReadOnlyViolation")
	}
}

func TestCancelledMatchesContextError(t *testing.T) {
	err := sqlerr.Cancelled(context.DeadlineExceeded)
	if !errors.Is(err, sqlerr.ErrCancelled) {
		t.Error("does not match ErrCancelled")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("does not match context.DeadlineExceeded")
	}
}

func TestFromEnginePassesClassifiedErrorsThrough(t *testing.T) {
	if sqlerr.FromEngine(nil, "SELECT 1") != nil {
		t.Error("FromEngine(nil) != nil")
	}

	cancelled := sqlerr.Cancelled(context.Canceled)
	if got := sqlerr.FromEngine(cancelled, "SELECT 1"); got != cancelled {
		t.Errorf("FromEngine rewrapped a cancellation: %v", got)
	}

	original := &sqlerr.SQLError{Code: sqlite.ResultError, Message: "boom"}
	if got := sqlerr.FromEngine(original, "SELECT 2"); got != error(original) {
		t.Errorf("FromEngine rewrapped a SQLError: %v", got)
	}
}

func TestFromEngineTagsStatement(t *testing.T) {
	err := sqlerr.FromEngine(errors.New("near \"TaBALe\": syntax error"), "CREATE TaBALe t (a)")
	var sqlError *sqlerr.SQLError
	if !errors.As(err, &sqlError) {
		t.Fatalf("FromEngine returned %T, want *SQLError", err)
	}
	if sqlError.SQL != "CREATE TaBALe t (a)" {
		t.Errorf("SQL = %q", sqlError.SQL)
	}
	if !strings.Contains(err.Error(), "syntax error") {
		t.Errorf("message lost: %v", err)
	}
}

func TestAbortsTransaction(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", sqlerr.Cancelled(context.Canceled), true},
		{"disk full", &sqlerr.SQLError{Code: sqlite.ResultFull}, true},
		{"interrupt", &sqlerr.SQLError{Code: sqlite.ResultInterrupt}, true},
		{"constraint", &sqlerr.SQLError{Code: sqlite.ResultConstraint}, false},
		{"busy", &sqlerr.SQLError{Code: sqlite.ResultBusy}, false},
		{"invalid state", sqlerr.Invalid("no transaction"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sqlerr.AbortsTransaction(tc.err); got != tc.want {
				t.Errorf("AbortsTransaction = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOpenErrorMessage(t *testing.T) {
	err := &sqlerr.OpenError{Path: "", ReadOnly: true, Err: errors.New("unable to open database file")}
	message := err.Error()
	if !strings.Contains(message, "<temporary>") || !strings.Contains(message, "read-only") {
		t.Errorf("Error() = %q", message)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"io"
	"math"
	"slices"
	"testing"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
	"github.com/bureau-foundation/sqlsession/lib/sqlitepool"
)

// openTestConnection returns the primary of a fresh pool holding table
// t(id INTEGER PRIMARY KEY, name TEXT, score REAL, data BLOB).
func openTestConnection(t *testing.T) *sqlitepool.Connection {
	t.Helper()
	pool := openTestPool(t, sqlitepool.Config{})
	conn := acquire(t, pool, sqlitepool.FlagPrimaryConnectionAffinity)
	t.Cleanup(func() { pool.Release(conn) })
	mustExecute(t, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT, score REAL, data BLOB)")
	return conn
}

func TestExecuteForLastInsertedRowID(t *testing.T) {
	conn := openTestConnection(t)
	ctx := context.Background()

	rowID, err := conn.ExecuteForLastInsertedRowID(ctx, "INSERT INTO t (name) VALUES (?)", []any{"first"})
	if err != nil || rowID != 1 {
		t.Fatalf("first insert rowid = %d, %v; want 1", rowID, err)
	}
	rowID, err = conn.ExecuteForLastInsertedRowID(ctx, "INSERT INTO t (id, name) VALUES (?, ?)", []any{42, "second"})
	if err != nil || rowID != 42 {
		t.Fatalf("second insert rowid = %d, %v; want 42", rowID, err)
	}
	rowID, err = conn.ExecuteForLastInsertedRowID(ctx, "UPDATE t SET name = 'x' WHERE id = -5", nil)
	if err != nil || rowID != -1 {
		t.Errorf("no-op update rowid = %d, %v; want -1", rowID, err)
	}
}

func TestExecuteForChangedRowCount(t *testing.T) {
	conn := openTestConnection(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "b"} {
		mustExecute(t, conn, "INSERT INTO t (name) VALUES (?)", name)
	}
	changed, err := conn.ExecuteForChangedRowCount(ctx, "DELETE FROM t WHERE name = ?", []any{"b"})
	if err != nil || changed != 2 {
		t.Errorf("changed = %d, %v; want 2", changed, err)
	}
}

func TestExecuteForScalars(t *testing.T) {
	conn := openTestConnection(t)
	ctx := context.Background()
	mustExecute(t, conn, "INSERT INTO t (name, score) VALUES ('alpha', 2.5)")

	count, err := conn.ExecuteForLong(ctx, "SELECT count(*) FROM t", nil)
	if err != nil || count != 1 {
		t.Errorf("count = %d, %v", count, err)
	}
	name, err := conn.ExecuteForString(ctx, "SELECT name FROM t WHERE score > ?", []any{2.0})
	if err != nil || name != "alpha" {
		t.Errorf("name = %q, %v", name, err)
	}

	_, err = conn.ExecuteForLong(ctx, "SELECT id FROM t WHERE name = 'missing'", nil)
	var sqlError *sqlerr.SQLError
	if !errors.As(err, &sqlError) || sqlError.Code != sqlite.ResultDone {
		t.Errorf("no-row ExecuteForLong error = %v, want SQLError with code DONE", err)
	}
}

func TestExecuteForBlob(t *testing.T) {
	conn := openTestConnection(t)
	ctx := context.Background()
	mustExecute(t, conn, "INSERT INTO t (id, data) VALUES (7, ?)", []byte{1, 2, 3})

	blob, err := conn.ExecuteForBlob(ctx, "SELECT data FROM t WHERE id = 7", nil)
	if err != nil {
		t.Fatalf("ExecuteForBlob: %v", err)
	}
	if _, err := blob.Seek(1, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	rest, err := io.ReadAll(blob)
	if err != nil || !slices.Equal(rest, []byte{2, 3}) {
		t.Errorf("read after seek = %v, %v", rest, err)
	}
	blob.Close()
	if _, err := blob.Read(make([]byte, 1)); !errors.Is(err, sqlerr.ErrClosed) {
		t.Errorf("Read after Close = %v, want ErrClosed", err)
	}

	// An integer column comes back in its text encoding.
	blob, err = conn.ExecuteForBlob(ctx, "SELECT id FROM t", nil)
	if err != nil {
		t.Fatalf("ExecuteForBlob on integer column: %v", err)
	}
	if content, _ := io.ReadAll(blob); string(content) != "7" {
		t.Errorf("integer blob = %q, want 7", content)
	}

	blob, err = conn.ExecuteForBlob(ctx, "SELECT name FROM t", nil)
	if err != nil || blob.Size() != 0 {
		t.Errorf("NULL blob size = %d, %v; want empty", blob.Size(), err)
	}
}

func TestBindArguments(t *testing.T) {
	conn := openTestConnection(t)
	ctx := context.Background()

	type label string
	cases := []struct {
		arg  any
		want string
	}{
		{nil, "null"},
		{int8(-3), "integer"},
		{uint32(9), "integer"},
		{uint64(math.MaxUint64), "text"},
		{float32(1.5), "real"},
		{true, "integer"},
		{"text", "text"},
		{[]byte{0}, "blob"},
		{[]byte(nil), "null"},
		{label("stringer"), "text"},
	}
	for _, tc := range cases {
		got, err := conn.ExecuteForString(ctx, "SELECT typeof(?)", []any{tc.arg})
		if err != nil {
			t.Fatalf("typeof(%#v): %v", tc.arg, err)
		}
		if got != tc.want {
			t.Errorf("typeof(%#v) = %q, want %q", tc.arg, got, tc.want)
		}
	}

	err := conn.Execute(ctx, "INSERT INTO t (name, score) VALUES (?, ?)", []any{"only one"})
	var sqlError *sqlerr.SQLError
	if !errors.As(err, &sqlError) || sqlError.Code != sqlite.ResultRange {
		t.Errorf("argument count mismatch = %v, want SQLError with code RANGE", err)
	}
}

func TestExecuteReportsSyntaxErrors(t *testing.T) {
	conn := openTestConnection(t)
	query := "CREATE TaBALe broken (a)"
	err := conn.Execute(context.Background(), query, nil)
	var sqlError *sqlerr.SQLError
	if !errors.As(err, &sqlError) {
		t.Fatalf("Execute = %v, want *SQLError", err)
	}
	if sqlError.SQL != query {
		t.Errorf("SQL = %q, want %q", sqlError.SQL, query)
	}

	if err := conn.Execute(context.Background(), "  -- nothing here\n", nil); !errors.As(err, &sqlError) {
		t.Errorf("empty statement = %v, want *SQLError", err)
	}
}

func TestExecuteCancelled(t *testing.T) {
	conn := openTestConnection(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := conn.Execute(ctx, "INSERT INTO t (name) VALUES ('never')", nil)
	if !errors.Is(err, sqlerr.ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute with cancelled context = %v", err)
	}
	count, err := conn.ExecuteForLong(context.Background(), "SELECT count(*) FROM t", nil)
	if err != nil || count != 0 {
		t.Errorf("count after cancelled insert = %d, %v; want 0", count, err)
	}
}

func TestPrepareDescribesStatement(t *testing.T) {
	conn := openTestConnection(t)

	info, err := conn.Prepare("SELECT id, name FROM t WHERE score > ? AND name = ?")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if info.NumParameters != 2 || !slices.Equal(info.ColumnNames, []string{"id", "name"}) ||
		!info.ReadOnly || info.Type != sqlitepool.StatementSelect {
		t.Errorf("select info = %+v", info)
	}

	info, err = conn.Prepare("DELETE FROM t")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if info.NumParameters != 0 || len(info.ColumnNames) != 0 || info.ReadOnly || info.Type != sqlitepool.StatementUpdate {
		t.Errorf("delete info = %+v", info)
	}

	info, err = conn.Prepare("WITH doomed AS (SELECT id FROM t WHERE score < ?) DELETE FROM t WHERE id IN (SELECT id FROM doomed)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if info.NumParameters != 1 || info.ReadOnly || info.Type != sqlitepool.StatementOther {
		t.Errorf("common table expression delete info = %+v, want a write", info)
	}

	if _, err := conn.Prepare("SELECT nope FROM missing"); err == nil {
		t.Error("Prepare of invalid statement succeeded")
	}
}

func TestCursorWindowSingleRow(t *testing.T) {
	conn := openTestConnection(t)
	mustExecute(t, conn, "INSERT INTO t (id, name, score, data) VALUES (1, 'one', 0.5, x'ff')")

	window := cursorwindow.New("single", 0)
	rows, err := conn.ExecuteForCursorWindow(context.Background(),
		"SELECT id, name, score, data FROM t", nil, window, 0, 0, false)
	if err != nil {
		t.Fatalf("ExecuteForCursorWindow: %v", err)
	}
	if rows != 1 || window.NumRows() != 1 || window.NumColumns() != 4 || window.StartPosition() != 0 {
		t.Fatalf("rows = %d, window rows %d columns %d start %d",
			rows, window.NumRows(), window.NumColumns(), window.StartPosition())
	}
	if id, _ := window.Long(0, 0); id != 1 {
		t.Errorf("id = %d", id)
	}
	if name, _ := window.Text(0, 1); name != "one" {
		t.Errorf("name = %q", name)
	}
	if score, _ := window.Double(0, 2); score != 0.5 {
		t.Errorf("score = %v", score)
	}
	if data, _ := window.Blob(0, 3); !slices.Equal(data, []byte{0xff}) {
		t.Errorf("data = %x", data)
	}
}

func TestCursorWindowRefillsToRequiredPosition(t *testing.T) {
	conn := openTestConnection(t)
	mustExecute(t, conn, `WITH RECURSIVE n(i) AS (SELECT 0 UNION ALL SELECT i + 1 FROM n WHERE i < 99)
		INSERT INTO t (id) SELECT i FROM n`)

	// One integer column costs 24 bytes per row: ten rows per window.
	window := cursorwindow.New("small", 240)
	rows, err := conn.ExecuteForCursorWindow(context.Background(),
		"SELECT id FROM t ORDER BY id", nil, window, 0, 25, true)
	if err != nil {
		t.Fatalf("ExecuteForCursorWindow: %v", err)
	}
	if rows != 100 {
		t.Errorf("counted rows = %d, want 100", rows)
	}
	if window.StartPosition() != 20 || window.NumRows() != 10 {
		t.Fatalf("window start %d rows %d, want 20 and 10", window.StartPosition(), window.NumRows())
	}
	if id, err := window.Long(25, 0); err != nil || id != 25 {
		t.Errorf("row 25 = %d, %v", id, err)
	}

	rows, err = conn.ExecuteForCursorWindow(context.Background(),
		"SELECT id FROM t ORDER BY id", nil, window, 50, 50, false)
	if err != nil {
		t.Fatalf("ExecuteForCursorWindow from 50: %v", err)
	}
	if window.StartPosition() != 50 || window.NumRows() != 10 {
		t.Errorf("window start %d rows %d, want 50 and 10", window.StartPosition(), window.NumRows())
	}
	if rows != 61 {
		t.Errorf("counted rows without counting all = %d, want 61", rows)
	}
}

func TestCursorWindowRowTooBig(t *testing.T) {
	conn := openTestConnection(t)
	mustExecute(t, conn, "INSERT INTO t (name) VALUES ('does not fit')")

	window := cursorwindow.New("tiny", 16)
	_, err := conn.ExecuteForCursorWindow(context.Background(), "SELECT name FROM t", nil, window, 0, 0, false)
	var sqlError *sqlerr.SQLError
	if !errors.As(err, &sqlError) || sqlError.Code != sqlite.ResultTooBig {
		t.Errorf("oversized row = %v, want SQLError with code TOOBIG", err)
	}
	if window.NumRows() != 0 {
		t.Errorf("window holds %d rows after failure", window.NumRows())
	}
}

func TestCursorWindowClosed(t *testing.T) {
	conn := openTestConnection(t)
	window := cursorwindow.New("closed", 0)
	window.Close()
	_, err := conn.ExecuteForCursorWindow(context.Background(), "SELECT 1", nil, window, 0, 0, false)
	if !errors.Is(err, sqlerr.ErrClosed) {
		t.Errorf("fill of closed window = %v, want ErrClosed", err)
	}
}

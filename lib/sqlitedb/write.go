// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

// Values maps column names to values for Insert and Update. Values
// bind with the same rules as statement arguments: nil and nil []byte
// are NULL.
type Values map[string]any

// columns returns the keys in sorted order so generated statements
// are stable.
func (v Values) columns() []string {
	return slices.Sorted(maps.Keys(v))
}

// Conflict selects the ON CONFLICT algorithm for generated INSERT and
// UPDATE statements.
type Conflict int

const (
	ConflictNone Conflict = iota
	ConflictRollback
	ConflictAbort
	ConflictFail
	ConflictIgnore
	ConflictReplace
)

func (c Conflict) clause() string {
	switch c {
	case ConflictRollback:
		return " OR ROLLBACK"
	case ConflictAbort:
		return " OR ABORT"
	case ConflictFail:
		return " OR FAIL"
	case ConflictIgnore:
		return " OR IGNORE"
	case ConflictReplace:
		return " OR REPLACE"
	default:
		return ""
	}
}

// Insert adds a row and returns its rowid, or -1 if the insert failed.
// The failure is logged; use InsertChecked to receive it.
//
// SQL cannot insert a row with no columns named, so when values is
// empty nullColumnHack names a nullable column to set to NULL.
func (db *Database) Insert(ctx context.Context, table, nullColumnHack string, values Values) int64 {
	rowID, err := db.InsertWithOnConflict(ctx, table, nullColumnHack, values, ConflictNone)
	if err != nil {
		db.logger.Error("insert failed", "table", table, "error", err)
		return -1
	}
	return rowID
}

// InsertChecked is Insert that returns the failure.
func (db *Database) InsertChecked(ctx context.Context, table, nullColumnHack string, values Values) (int64, error) {
	return db.InsertWithOnConflict(ctx, table, nullColumnHack, values, ConflictNone)
}

// Replace inserts a row, first deleting any row it would conflict
// with. It returns the new rowid, or -1 if the statement failed; the
// failure is logged.
func (db *Database) Replace(ctx context.Context, table, nullColumnHack string, values Values) int64 {
	rowID, err := db.InsertWithOnConflict(ctx, table, nullColumnHack, values, ConflictReplace)
	if err != nil {
		db.logger.Error("replace failed", "table", table, "error", err)
		return -1
	}
	return rowID
}

// ReplaceChecked is Replace that returns the failure.
func (db *Database) ReplaceChecked(ctx context.Context, table, nullColumnHack string, values Values) (int64, error) {
	return db.InsertWithOnConflict(ctx, table, nullColumnHack, values, ConflictReplace)
}

// InsertWithOnConflict inserts a row using conflict. It returns the new
// rowid, or -1 when the conflict algorithm skipped the row.
func (db *Database) InsertWithOnConflict(ctx context.Context, table, nullColumnHack string, values Values,
	conflict Conflict,
) (int64, error) {
	query, args, err := insertStatement(table, nullColumnHack, values, conflict)
	if err != nil {
		return -1, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return -1, errDatabaseClosed()
	}
	rowID, err := db.session.ExecuteForLastInsertedRowID(ctx, query, args, writeFlags)
	if err != nil {
		return -1, err
	}
	return rowID, nil
}

func insertStatement(table, nullColumnHack string, values Values, conflict Conflict) (string, []any, error) {
	var query strings.Builder
	query.WriteString("INSERT")
	query.WriteString(conflict.clause())
	query.WriteString(" INTO ")
	query.WriteString(table)

	columns := values.columns()
	if len(columns) == 0 {
		if nullColumnHack == "" {
			return "", nil, sqlerr.Invalid("insert into %s with no values needs a null column", table)
		}
		fmt.Fprintf(&query, " (%s) VALUES (NULL)", nullColumnHack)
		return query.String(), nil, nil
	}

	args := make([]any, len(columns))
	for i, column := range columns {
		args[i] = values[column]
	}
	fmt.Fprintf(&query, " (%s) VALUES (%s)", strings.Join(columns, ", "), placeholders(len(columns)))
	return query.String(), args, nil
}

// Update sets values on rows matching whereClause and returns the
// number of rows changed. An empty whereClause updates every row.
func (db *Database) Update(ctx context.Context, table string, values Values, whereClause string, whereArgs ...any) (int, error) {
	return db.UpdateWithOnConflict(ctx, table, values, whereClause, whereArgs, ConflictNone)
}

// UpdateWithOnConflict is Update with a conflict algorithm.
func (db *Database) UpdateWithOnConflict(ctx context.Context, table string, values Values, whereClause string,
	whereArgs []any, conflict Conflict,
) (int, error) {
	columns := values.columns()
	if len(columns) == 0 {
		return 0, sqlerr.Invalid("update of %s with no values", table)
	}

	var query strings.Builder
	query.WriteString("UPDATE")
	query.WriteString(conflict.clause())
	query.WriteString(" ")
	query.WriteString(table)
	query.WriteString(" SET ")

	args := make([]any, 0, len(columns)+len(whereArgs))
	for i, column := range columns {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString(column)
		query.WriteString(" = ?")
		args = append(args, values[column])
	}
	args = append(args, whereArgs...)
	if whereClause != "" {
		query.WriteString(" WHERE ")
		query.WriteString(whereClause)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, errDatabaseClosed()
	}
	return db.session.ExecuteForChangedRowCount(ctx, query.String(), args, writeFlags)
}

// Delete removes rows matching whereClause and returns how many were
// removed. An empty whereClause deletes every row.
func (db *Database) Delete(ctx context.Context, table, whereClause string, whereArgs ...any) (int, error) {
	query := "DELETE FROM " + table
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, errDatabaseClosed()
	}
	return db.session.ExecuteForChangedRowCount(ctx, query, whereArgs, writeFlags)
}

func placeholders(count int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

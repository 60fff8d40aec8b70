// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"context"
	"regexp"
	"strings"

	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

// limitPattern accepts "count" or "offset, count".
var limitPattern = regexp.MustCompile(`^\s*\d+\s*(,\s*\d+\s*)?$`)

// Query describes a SELECT over one table (or join expression). Empty
// fields are omitted from the generated statement.
type Query struct {
	Distinct bool
	Table    string

	// Columns to return. Empty selects every column.
	Columns []string

	// Selection is the WHERE clause without the keyword. Its ?
	// placeholders bind SelectionArgs in order.
	Selection     string
	SelectionArgs []any

	GroupBy string

	// Having requires GroupBy.
	Having string

	OrderBy string

	// Limit is "count" or "offset, count".
	Limit string
}

// SQL builds the SELECT statement. It rejects HAVING without GROUP BY
// and malformed LIMIT clauses.
func (q Query) SQL() (string, error) {
	if q.Table == "" {
		return "", sqlerr.Invalid("query has no table")
	}
	if q.GroupBy == "" && q.Having != "" {
		return "", sqlerr.Invalid("HAVING clauses are only permitted with a GROUP BY clause")
	}
	if q.Limit != "" && !limitPattern.MatchString(q.Limit) {
		return "", sqlerr.Invalid("invalid LIMIT clause %q", q.Limit)
	}

	var query strings.Builder
	query.WriteString("SELECT ")
	if q.Distinct {
		query.WriteString("DISTINCT ")
	}
	if len(q.Columns) == 0 {
		query.WriteString("*")
	} else {
		query.WriteString(strings.Join(q.Columns, ", "))
	}
	query.WriteString(" FROM ")
	query.WriteString(q.Table)
	appendClause(&query, " WHERE ", q.Selection)
	appendClause(&query, " GROUP BY ", q.GroupBy)
	appendClause(&query, " HAVING ", q.Having)
	appendClause(&query, " ORDER BY ", q.OrderBy)
	appendClause(&query, " LIMIT ", q.Limit)
	return query.String(), nil
}

func appendClause(query *strings.Builder, keyword, clause string) {
	if clause != "" {
		query.WriteString(keyword)
		query.WriteString(clause)
	}
}

// Query runs q and returns a cursor over its rows.
func (db *Database) Query(ctx context.Context, q Query) (*Cursor, error) {
	query, err := q.SQL()
	if err != nil {
		return nil, err
	}
	return db.RawQuery(ctx, query, q.SelectionArgs...)
}

// RawQuery compiles query and returns a cursor over its rows. The
// statement runs when the cursor first needs rows, and again each time
// it refills its window. ctx governs every run; the cursor must not
// outlive it.
func (db *Database) RawQuery(ctx context.Context, query string, args ...any) (*Cursor, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, errDatabaseClosed()
	}
	info, err := db.session.Prepare(ctx, query, readFlags)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		db:       db,
		ctx:      ctx,
		query:    query,
		args:     args,
		columns:  info.ColumnNames,
		window:   cursorwindow.New(query, db.windowSize),
		count:    -1,
		position: -1,
	}, nil
}

// fillWindow runs the cursor's statement into its window under the
// database lock.
func (db *Database) fillWindow(ctx context.Context, cursor *Cursor, startPosition, requiredPosition int,
	countAllRows bool,
) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, errDatabaseClosed()
	}
	return db.session.ExecuteForCursorWindow(ctx, cursor.query, cursor.args, cursor.window,
		startPosition, requiredPosition, countAllRows, readFlags)
}

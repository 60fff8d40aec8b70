// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"context"
	"fmt"
	"slices"

	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

// Cursor walks the rows of a query. It starts before the first row.
// Movement methods report whether the cursor landed on a row; when one
// returns false because a refill failed, Err returns the failure.
//
//	cursor, err := db.RawQuery(ctx, "SELECT id, body FROM entries")
//	if err != nil {
//	    return err
//	}
//	defer cursor.Close()
//	for cursor.Next() {
//	    id, _ := cursor.Long(0)
//	    body, _ := cursor.Text(1)
//	    ...
//	}
//	return cursor.Err()
//
// A Cursor is not safe for concurrent use.
type Cursor struct {
	db      *Database
	ctx     context.Context
	query   string
	args    []any
	columns []string
	window  *cursorwindow.Window

	// count is -1 until the first fill counts the result.
	count int

	// windowRows is how many rows the first fill held. Refills start a
	// third of that before the requested row so short moves backwards
	// stay inside the window.
	windowRows int

	position int
	err      error
	closed   bool
}

// Count returns the number of rows in the result, running the query
// if it has not run yet. It returns 0 if that run fails.
func (c *Cursor) Count() int {
	if c.count < 0 && c.err == nil && !c.closed {
		c.err = c.fill(0)
	}
	return max(c.count, 0)
}

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error { return c.err }

// Position is the current row: -1 before the first row and Count()
// after the last.
func (c *Cursor) Position() int { return c.position }

// MoveToPosition moves to an absolute row. Positions outside the
// result leave the cursor before the first or after the last row.
func (c *Cursor) MoveToPosition(position int) bool {
	if c.closed {
		return false
	}
	count := c.Count()
	if c.err != nil {
		return false
	}
	if position >= count {
		c.position = count
		return false
	}
	if position < 0 {
		c.position = -1
		return false
	}
	if !c.window.Contains(position) {
		if err := c.fill(position); err != nil {
			c.err = err
			return false
		}
		if !c.window.Contains(position) {
			c.position = count
			return false
		}
	}
	c.position = position
	return true
}

// Move moves offset rows from the current position.
func (c *Cursor) Move(offset int) bool { return c.MoveToPosition(c.position + offset) }

func (c *Cursor) MoveToFirst() bool { return c.MoveToPosition(0) }

func (c *Cursor) MoveToLast() bool { return c.MoveToPosition(c.Count() - 1) }

func (c *Cursor) MoveToNext() bool { return c.MoveToPosition(c.position + 1) }

func (c *Cursor) MoveToPrevious() bool { return c.MoveToPosition(c.position - 1) }

// Next is MoveToNext, named for loops.
func (c *Cursor) Next() bool { return c.MoveToNext() }

func (c *Cursor) IsBeforeFirst() bool { return c.Count() == 0 || c.position == -1 }

func (c *Cursor) IsAfterLast() bool { return c.Count() == 0 || c.position == c.Count() }

func (c *Cursor) IsFirst() bool { return c.position == 0 && c.Count() != 0 }

func (c *Cursor) IsLast() bool {
	count := c.Count()
	return count != 0 && c.position == count-1
}

// ColumnCount is the number of result columns.
func (c *Cursor) ColumnCount() int { return len(c.columns) }

// ColumnNames returns the result column names.
func (c *Cursor) ColumnNames() []string { return slices.Clone(c.columns) }

// ColumnIndex returns the index of the named column, or -1.
func (c *Cursor) ColumnIndex(name string) int { return slices.Index(c.columns, name) }

// Type returns the storage class of column in the current row.
func (c *Cursor) Type(column int) (cursorwindow.FieldType, error) {
	if err := c.checkRow(); err != nil {
		return 0, err
	}
	return c.window.Type(c.position, column)
}

func (c *Cursor) IsNull(column int) (bool, error) {
	if err := c.checkRow(); err != nil {
		return false, err
	}
	return c.window.IsNull(c.position, column)
}

func (c *Cursor) Long(column int) (int64, error) {
	if err := c.checkRow(); err != nil {
		return 0, err
	}
	return c.window.Long(c.position, column)
}

// Int is Long truncated to int.
func (c *Cursor) Int(column int) (int, error) {
	value, err := c.Long(column)
	return int(value), err
}

func (c *Cursor) Double(column int) (float64, error) {
	if err := c.checkRow(); err != nil {
		return 0, err
	}
	return c.window.Double(c.position, column)
}

func (c *Cursor) Text(column int) (string, error) {
	if err := c.checkRow(); err != nil {
		return "", err
	}
	return c.window.Text(c.position, column)
}

func (c *Cursor) Blob(column int) ([]byte, error) {
	if err := c.checkRow(); err != nil {
		return nil, err
	}
	return c.window.Blob(c.position, column)
}

// Window returns the cursor's window as last filled.
func (c *Cursor) Window() *cursorwindow.Window { return c.window }

// Close releases the window. Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.window.Close()
}

func (c *Cursor) fill(requiredPosition int) error {
	first := c.count < 0
	startPosition := 0
	if !first {
		startPosition = max(requiredPosition-c.windowRows/3, 0)
	}
	rows, err := c.db.fillWindow(c.ctx, c, startPosition, requiredPosition, first)
	if err != nil {
		return err
	}
	if first {
		c.count = rows
		c.windowRows = c.window.NumRows()
	}
	return nil
}

func (c *Cursor) checkRow() error {
	if c.closed {
		return fmt.Errorf("sqlitedb: cursor: %w: %w", sqlerr.ErrInvalidState, sqlerr.ErrClosed)
	}
	if c.position < 0 || c.position >= max(c.count, 0) {
		return sqlerr.Invalid("cursor is not on a row (position %d of %d)", c.position, max(c.count, 0))
	}
	return nil
}

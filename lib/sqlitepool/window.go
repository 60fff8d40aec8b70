// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

// ExecuteForCursorWindow runs query and copies result rows into window.
//
// Rows before startPosition are stepped over. Rows are copied until the
// window is full; if it fills before requiredPosition has been copied,
// the window is cleared and filling restarts at the row that did not
// fit, so the window always ends up holding requiredPosition when the
// result has that many rows. With countAllRows the statement is
// stepped to the end after the window fills.
//
// The return value is the number of rows stepped: the full result size
// when countAllRows is set, otherwise a lower bound. The window's start
// position is set to the position of its first row. A single row
// larger than the empty window is an error with code SQLITE_TOOBIG.
func (c *Connection) ExecuteForCursorWindow(ctx context.Context, query string, args []any,
	window *cursorwindow.Window, startPosition, requiredPosition int, countAllRows bool,
) (int, error) {
	if window == nil {
		return 0, sqlerr.Invalid("cursor window is nil")
	}
	if err := window.Clear(); err != nil {
		return 0, err
	}

	totalRows := 0
	err := c.run(ctx, query, args, func(stmt *sqlite.Stmt) error {
		columns := stmt.ColumnCount()
		if err := resetWindow(window, columns, startPosition); err != nil {
			return err
		}

		addedRows := 0
		windowFull := false
		for !windowFull || countAllRows {
			hasRow, err := stmt.Step()
			if err != nil {
				return err
			}
			if !hasRow {
				break
			}
			totalRows++
			if startPosition >= totalRows || windowFull {
				continue
			}

			full, err := copyRow(window, stmt, columns, startPosition+addedRows)
			if err != nil {
				return err
			}
			if full && addedRows > 0 && startPosition+addedRows <= requiredPosition {
				startPosition += addedRows
				addedRows = 0
				if err := resetWindow(window, columns, startPosition); err != nil {
					return err
				}
				full, err = copyRow(window, stmt, columns, startPosition)
				if err != nil {
					return err
				}
			}
			if !full {
				addedRows++
				continue
			}
			if addedRows == 0 {
				return &sqlerr.SQLError{
					Code: sqlite.ResultTooBig,
					Message: fmt.Sprintf("row %d does not fit in an empty cursor window of %d bytes",
						startPosition, window.Capacity()),
					SQL: query,
				}
			}
			windowFull = true
		}
		return nil
	})
	if err != nil {
		window.Clear()
		return 0, err
	}
	return totalRows, nil
}

func resetWindow(window *cursorwindow.Window, columns, startPosition int) error {
	if err := window.Clear(); err != nil {
		return err
	}
	if err := window.SetNumColumns(columns); err != nil {
		return err
	}
	return window.SetStartPosition(startPosition)
}

// copyRow appends the statement's current row at position. It reports
// full (and leaves the window unchanged) when the row does not fit.
func copyRow(window *cursorwindow.Window, stmt *sqlite.Stmt, columns, position int) (full bool, err error) {
	if err := window.AllocRow(); err != nil {
		return errors.Is(err, cursorwindow.ErrFull), ignoreFull(err)
	}
	for column := range columns {
		if err := copyField(window, stmt, position, column); err != nil {
			if freeErr := window.FreeLastRow(); freeErr != nil {
				return false, freeErr
			}
			return errors.Is(err, cursorwindow.ErrFull), ignoreFull(err)
		}
	}
	return false, nil
}

func copyField(window *cursorwindow.Window, stmt *sqlite.Stmt, position, column int) error {
	switch stmt.ColumnType(column) {
	case sqlite.TypeInteger:
		return window.PutLong(position, column, stmt.ColumnInt64(column))
	case sqlite.TypeFloat:
		return window.PutDouble(position, column, stmt.ColumnFloat(column))
	case sqlite.TypeText:
		return window.PutString(position, column, stmt.ColumnText(column))
	case sqlite.TypeBlob:
		data := make([]byte, stmt.ColumnLen(column))
		stmt.ColumnBytes(column, data)
		return window.PutBlob(position, column, data)
	default:
		return window.PutNull(position, column)
	}
}

func ignoreFull(err error) error {
	if errors.Is(err, cursorwindow.ErrFull) {
		return nil
	}
	return err
}

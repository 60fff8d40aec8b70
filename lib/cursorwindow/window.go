// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cursorwindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

// DefaultSize is the capacity used when New is given a non-positive
// size hint.
const DefaultSize = 2 * 1024 * 1024

const (
	// rowHeaderSize is charged once per allocated row.
	rowHeaderSize = 8

	// fieldSlotSize is charged once per column of every row. Numeric
	// values live entirely in the slot.
	fieldSlotSize = 16
)

// ErrFull is returned when a row or value does not fit in the
// remaining capacity.
var ErrFull = errors.New("cursor window is full")

// FieldType identifies the storage class of a value in the window.
type FieldType uint8

const (
	FieldTypeNull FieldType = iota
	FieldTypeInteger
	FieldTypeFloat
	FieldTypeString
	FieldTypeBlob
)

// String returns the SQLite storage class name.
func (fieldType FieldType) String() string {
	switch fieldType {
	case FieldTypeNull:
		return "NULL"
	case FieldTypeInteger:
		return "INTEGER"
	case FieldTypeFloat:
		return "FLOAT"
	case FieldTypeString:
		return "TEXT"
	case FieldTypeBlob:
		return "BLOB"
	default:
		return fmt.Sprintf("unknown(%d)", fieldType)
	}
}

type field struct {
	kind    FieldType
	integer int64
	float   float64
	text    string
	blob    []byte
}

func (f *field) payloadSize() int {
	switch f.kind {
	case FieldTypeString:
		return len(f.text) + 1
	case FieldTypeBlob:
		return len(f.blob)
	default:
		return 0
	}
}

// Window is a bounded buffer of result rows. See the package
// documentation for the addressing model.
type Window struct {
	name          string
	capacity      int
	used          int
	startPosition int
	numColumns    int
	rows          [][]field
	closed        bool
}

// New allocates a window. A sizeHint of zero or less selects
// DefaultSize.
func New(name string, sizeHint int) *Window {
	if sizeHint <= 0 {
		sizeHint = DefaultSize
	}
	return &Window{name: name, capacity: sizeHint}
}

// Name returns the label given to New.
func (w *Window) Name() string { return w.name }

// Capacity returns the byte budget of the window.
func (w *Window) Capacity() int { return w.capacity }

// FreeSpace returns the number of unused bytes.
func (w *Window) FreeSpace() int { return w.capacity - w.used }

// NumRows returns the number of rows currently held.
func (w *Window) NumRows() int { return len(w.rows) }

// NumColumns returns the column count set by the last fill.
func (w *Window) NumColumns() int { return w.numColumns }

// StartPosition returns the absolute position of the first row.
func (w *Window) StartPosition() int { return w.startPosition }

// IsClosed reports whether Close has been called.
func (w *Window) IsClosed() bool { return w.closed }

// Contains reports whether the absolute row position is held by the
// window.
func (w *Window) Contains(position int) bool {
	return !w.closed && position >= w.startPosition && position < w.startPosition+len(w.rows)
}

// Clear removes all rows and resets the column count and start
// position. The capacity is unchanged.
func (w *Window) Clear() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	w.rows = w.rows[:0]
	w.used = 0
	w.numColumns = 0
	w.startPosition = 0
	return nil
}

// SetStartPosition sets the absolute position of the first row.
func (w *Window) SetStartPosition(position int) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if position < 0 {
		return sqlerr.Invalid("cursor window %q: negative start position %d", w.name, position)
	}
	w.startPosition = position
	return nil
}

// SetNumColumns sets the column count. It can only change while the
// window holds no rows.
func (w *Window) SetNumColumns(columns int) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if columns < 0 {
		return sqlerr.Invalid("cursor window %q: negative column count %d", w.name, columns)
	}
	if len(w.rows) > 0 && columns != w.numColumns {
		return sqlerr.Invalid("cursor window %q: cannot change column count from %d to %d with %d rows present",
			w.name, w.numColumns, columns, len(w.rows))
	}
	w.numColumns = columns
	return nil
}

// AllocRow appends an empty row with every column NULL. Returns
// ErrFull if the row header and slots do not fit.
func (w *Window) AllocRow() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	cost := rowHeaderSize + w.numColumns*fieldSlotSize
	if w.used+cost > w.capacity {
		return ErrFull
	}
	w.rows = append(w.rows, make([]field, w.numColumns))
	w.used += cost
	return nil
}

// FreeLastRow removes the most recently allocated row and returns its
// space. Fillers call it when a value of the row did not fit.
func (w *Window) FreeLastRow() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if len(w.rows) == 0 {
		return sqlerr.Invalid("cursor window %q: no row to free", w.name)
	}
	last := w.rows[len(w.rows)-1]
	cost := rowHeaderSize + w.numColumns*fieldSlotSize
	for i := range last {
		cost += last[i].payloadSize()
	}
	w.rows = w.rows[:len(w.rows)-1]
	w.used -= cost
	return nil
}

// PutNull stores NULL at (position, column).
func (w *Window) PutNull(position, column int) error {
	return w.put(position, column, field{kind: FieldTypeNull})
}

// PutLong stores an integer at (position, column).
func (w *Window) PutLong(position, column int, value int64) error {
	return w.put(position, column, field{kind: FieldTypeInteger, integer: value})
}

// PutDouble stores a float at (position, column).
func (w *Window) PutDouble(position, column int, value float64) error {
	return w.put(position, column, field{kind: FieldTypeFloat, float: value})
}

// PutString stores text at (position, column).
func (w *Window) PutString(position, column int, value string) error {
	return w.put(position, column, field{kind: FieldTypeString, text: value})
}

// PutBlob stores a copy of value at (position, column).
func (w *Window) PutBlob(position, column int, value []byte) error {
	copied := make([]byte, len(value))
	copy(copied, value)
	return w.put(position, column, field{kind: FieldTypeBlob, blob: copied})
}

func (w *Window) put(position, column int, value field) error {
	slot, err := w.slot(position, column)
	if err != nil {
		return err
	}
	delta := value.payloadSize() - slot.payloadSize()
	if w.used+delta > w.capacity {
		return ErrFull
	}
	*slot = value
	w.used += delta
	return nil
}

// Type returns the storage class at (position, column).
func (w *Window) Type(position, column int) (FieldType, error) {
	slot, err := w.slot(position, column)
	if err != nil {
		return FieldTypeNull, err
	}
	return slot.kind, nil
}

// IsNull reports whether the value at (position, column) is NULL.
func (w *Window) IsNull(position, column int) (bool, error) {
	fieldType, err := w.Type(position, column)
	if err != nil {
		return false, err
	}
	return fieldType == FieldTypeNull, nil
}

// Long returns the value at (position, column) as an integer. Text is
// parsed leniently (leading integer prefix, zero if none), floats are
// truncated, NULL reads as zero, and BLOB is an error.
func (w *Window) Long(position, column int) (int64, error) {
	slot, err := w.slot(position, column)
	if err != nil {
		return 0, err
	}
	switch slot.kind {
	case FieldTypeInteger:
		return slot.integer, nil
	case FieldTypeFloat:
		return int64(slot.float), nil
	case FieldTypeString:
		return parseLeadingInt(slot.text), nil
	case FieldTypeNull:
		return 0, nil
	default:
		return 0, w.conversionError(position, column, slot.kind, "integer")
	}
}

// Double returns the value at (position, column) as a float, with the
// same conversions as Long.
func (w *Window) Double(position, column int) (float64, error) {
	slot, err := w.slot(position, column)
	if err != nil {
		return 0, err
	}
	switch slot.kind {
	case FieldTypeFloat:
		return slot.float, nil
	case FieldTypeInteger:
		return float64(slot.integer), nil
	case FieldTypeString:
		value, parseErr := strconv.ParseFloat(strings.TrimSpace(slot.text), 64)
		if parseErr != nil {
			return 0, nil
		}
		return value, nil
	case FieldTypeNull:
		return 0, nil
	default:
		return 0, w.conversionError(position, column, slot.kind, "float")
	}
}

// Text returns the value at (position, column) as text. Numbers are
// formatted, NULL reads as the empty string, and BLOB is an error.
func (w *Window) Text(position, column int) (string, error) {
	slot, err := w.slot(position, column)
	if err != nil {
		return "", err
	}
	switch slot.kind {
	case FieldTypeString:
		return slot.text, nil
	case FieldTypeInteger:
		return strconv.FormatInt(slot.integer, 10), nil
	case FieldTypeFloat:
		return strconv.FormatFloat(slot.float, 'g', -1, 64), nil
	case FieldTypeNull:
		return "", nil
	default:
		return "", w.conversionError(position, column, slot.kind, "string")
	}
}

// Blob returns a copy of the value at (position, column) as bytes.
// Text converts to its UTF-8 bytes and NULL reads as nil; numbers are
// an error.
func (w *Window) Blob(position, column int) ([]byte, error) {
	slot, err := w.slot(position, column)
	if err != nil {
		return nil, err
	}
	switch slot.kind {
	case FieldTypeBlob:
		copied := make([]byte, len(slot.blob))
		copy(copied, slot.blob)
		return copied, nil
	case FieldTypeString:
		return []byte(slot.text), nil
	case FieldTypeNull:
		return nil, nil
	default:
		return nil, w.conversionError(position, column, slot.kind, "blob")
	}
}

// Close releases the row storage. Closing twice is a no-op.
func (w *Window) Close() error {
	w.rows = nil
	w.used = 0
	w.closed = true
	return nil
}

func (w *Window) slot(position, column int) (*field, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	row := position - w.startPosition
	if row < 0 || row >= len(w.rows) {
		return nil, sqlerr.Invalid("cursor window %q: row %d outside [%d, %d)",
			w.name, position, w.startPosition, w.startPosition+len(w.rows))
	}
	if column < 0 || column >= w.numColumns {
		return nil, sqlerr.Invalid("cursor window %q: column %d outside [0, %d)", w.name, column, w.numColumns)
	}
	return &w.rows[row][column], nil
}

func (w *Window) checkOpen() error {
	if w.closed {
		return fmt.Errorf("cursor window %q: %w: %w", w.name, sqlerr.ErrInvalidState, sqlerr.ErrClosed)
	}
	return nil
}

func (w *Window) conversionError(position, column int, from FieldType, to string) error {
	return fmt.Errorf("cursor window %q: cannot convert %s at row %d column %d to %s",
		w.name, from, position, column, to)
}

// parseLeadingInt mirrors SQLite's text-to-integer coercion: optional
// whitespace and sign followed by digits; anything else stops the scan.
func parseLeadingInt(text string) int64 {
	text = strings.TrimLeft(text, " \t\n\r")
	end := 0
	if end < len(text) && (text[end] == '-' || text[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0
	}
	value, err := strconv.ParseInt(text[:end], 10, 64)
	if err != nil {
		return 0
	}
	return value
}

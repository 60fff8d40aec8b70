// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cursorwindow

import (
	"fmt"

	"github.com/bureau-foundation/sqlsession/lib/codec"
)

// snapshotVersion is bumped when the encoded layout changes.
const snapshotVersion = 1

// snapshot is the CBOR form of a window. Field values use toarray so
// that a row of small integers costs a few bytes per column.
type snapshot struct {
	Version       int               `cbor:"version"`
	Name          string            `cbor:"name"`
	Capacity      int               `cbor:"capacity"`
	StartPosition int               `cbor:"start_position"`
	NumColumns    int               `cbor:"num_columns"`
	Rows          [][]snapshotValue `cbor:"rows"`
}

type snapshotValue struct {
	_       struct{} `cbor:",toarray"`
	Kind    FieldType
	Integer int64
	Float   float64
	Text    string
	Blob    []byte
}

// MarshalBinary encodes the window's rows, column count, start
// position, and capacity as deterministic CBOR.
func (w *Window) MarshalBinary() ([]byte, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	encoded := snapshot{
		Version:       snapshotVersion,
		Name:          w.name,
		Capacity:      w.capacity,
		StartPosition: w.startPosition,
		NumColumns:    w.numColumns,
		Rows:          make([][]snapshotValue, len(w.rows)),
	}
	for i, row := range w.rows {
		values := make([]snapshotValue, len(row))
		for j, value := range row {
			values[j] = snapshotValue{
				Kind:    value.kind,
				Integer: value.integer,
				Float:   value.float,
				Text:    value.text,
				Blob:    value.blob,
			}
		}
		encoded.Rows[i] = values
	}
	return codec.Marshal(encoded)
}

// UnmarshalBinary replaces the window's contents with a snapshot
// produced by MarshalBinary. The snapshot's capacity is adopted, and
// the rows are re-admitted through the normal accounting so a
// corrupted snapshot cannot exceed it.
func (w *Window) UnmarshalBinary(data []byte) error {
	var decoded snapshot
	if err := codec.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("cursor window: decoding snapshot: %w", err)
	}
	if decoded.Version != snapshotVersion {
		return fmt.Errorf("cursor window: unsupported snapshot version %d", decoded.Version)
	}

	restored := New(decoded.Name, decoded.Capacity)
	if err := restored.SetNumColumns(decoded.NumColumns); err != nil {
		return err
	}
	if err := restored.SetStartPosition(decoded.StartPosition); err != nil {
		return err
	}
	for i, row := range decoded.Rows {
		if len(row) != decoded.NumColumns {
			return fmt.Errorf("cursor window: snapshot row %d has %d columns, want %d", i, len(row), decoded.NumColumns)
		}
		if err := restored.AllocRow(); err != nil {
			return fmt.Errorf("cursor window: snapshot row %d: %w", i, err)
		}
		position := decoded.StartPosition + i
		for column, value := range row {
			if err := restored.putSnapshotValue(position, column, value); err != nil {
				return fmt.Errorf("cursor window: snapshot row %d column %d: %w", i, column, err)
			}
		}
	}

	*w = *restored
	return nil
}

func (w *Window) putSnapshotValue(position, column int, value snapshotValue) error {
	switch value.Kind {
	case FieldTypeNull:
		return w.PutNull(position, column)
	case FieldTypeInteger:
		return w.PutLong(position, column, value.Integer)
	case FieldTypeFloat:
		return w.PutDouble(position, column, value.Float)
	case FieldTypeString:
		return w.PutString(position, column, value.Text)
	case FieldTypeBlob:
		return w.PutBlob(position, column, value.Blob)
	default:
		return fmt.Errorf("unknown field type %d", value.Kind)
	}
}

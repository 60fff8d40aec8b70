// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resultexport

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/sqlsession/lib/codec"
	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlitedb"
)

// FormatVersion is written into every export header.
const FormatVersion = 1

// ErrChecksumMismatch reports a payload whose checksum does not match
// its header.
var ErrChecksumMismatch = errors.New("resultexport: payload checksum mismatch")

// checksumKey separates export checksums from any other BLAKE3 use of
// the same bytes. ASCII "bureau.sqlsession.export", zero padded.
var checksumKey = [32]byte{
	'b', 'u', 'r', 'e', 'a', 'u', '.', 's', 'q', 'l', 's', 'e', 's', 's', 'i', 'o',
	'n', '.', 'e', 'x', 'p', 'o', 'r', 't', 0, 0, 0, 0, 0, 0, 0, 0,
}

// Checksum is a BLAKE3 keyed digest of an uncompressed payload.
type Checksum [32]byte

func (c Checksum) String() string { return hex.EncodeToString(c[:]) }

func checksum(payload []byte) Checksum {
	hasher, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		panic("resultexport: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	var sum Checksum
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// Export is one encoded result set.
type Export struct {
	Version          int         `cbor:"version"`
	Compression      Compression `cbor:"compression"`
	Columns          []string    `cbor:"columns"`
	RowCount         int         `cbor:"row_count"`
	UncompressedSize int         `cbor:"uncompressed_size"`
	Checksum         Checksum    `cbor:"checksum"`
	Payload          []byte      `cbor:"payload"`
}

// cell is one typed value in the payload.
type cell struct {
	_       struct{} `cbor:",toarray"`
	Kind    cursorwindow.FieldType
	Integer int64
	Float   float64
	Text    string
	Blob    []byte
}

// Encode builds an export from rows of int64, float64, string, []byte,
// or nil values. Other integer and float types are widened. If
// compression does not shrink the payload it is stored uncompressed.
func Encode(columns []string, rows [][]any, compression Compression) (*Export, error) {
	cells := make([][]cell, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("resultexport: row %d has %d values for %d columns", i, len(row), len(columns))
		}
		cells[i] = make([]cell, len(row))
		for j, value := range row {
			encoded, err := toCell(value)
			if err != nil {
				return nil, fmt.Errorf("resultexport: row %d column %q: %w", i, columns[j], err)
			}
			cells[i][j] = encoded
		}
	}

	payload, err := codec.Marshal(cells)
	if err != nil {
		return nil, fmt.Errorf("resultexport: encoding rows: %w", err)
	}
	export := &Export{
		Version:          FormatVersion,
		Compression:      compression,
		Columns:          columns,
		RowCount:         len(rows),
		UncompressedSize: len(payload),
		Checksum:         checksum(payload),
	}
	compressed, err := compress(payload, compression)
	switch {
	case errors.Is(err, errIncompressible):
		export.Compression = CompressionNone
		export.Payload = payload
	case err != nil:
		return nil, fmt.Errorf("resultexport: %w", err)
	default:
		export.Payload = compressed
	}
	return export, nil
}

func toCell(value any) (cell, error) {
	switch typed := value.(type) {
	case nil:
		return cell{Kind: cursorwindow.FieldTypeNull}, nil
	case int64:
		return cell{Kind: cursorwindow.FieldTypeInteger, Integer: typed}, nil
	case int:
		return cell{Kind: cursorwindow.FieldTypeInteger, Integer: int64(typed)}, nil
	case int32:
		return cell{Kind: cursorwindow.FieldTypeInteger, Integer: int64(typed)}, nil
	case float64:
		return cell{Kind: cursorwindow.FieldTypeFloat, Float: typed}, nil
	case float32:
		return cell{Kind: cursorwindow.FieldTypeFloat, Float: float64(typed)}, nil
	case string:
		return cell{Kind: cursorwindow.FieldTypeString, Text: typed}, nil
	case []byte:
		if typed == nil {
			return cell{Kind: cursorwindow.FieldTypeNull}, nil
		}
		return cell{Kind: cursorwindow.FieldTypeBlob, Blob: typed}, nil
	default:
		return cell{}, fmt.Errorf("unsupported value type %T", value)
	}
}

// FromCursor reads every remaining row of cursor and encodes it. The
// cursor is left after its last row.
func FromCursor(cursor *sqlitedb.Cursor, compression Compression) (*Export, error) {
	columns := cursor.ColumnNames()
	var rows [][]any
	for cursor.Next() {
		row := make([]any, len(columns))
		for column := range columns {
			value, err := cursorValue(cursor, column)
			if err != nil {
				return nil, fmt.Errorf("resultexport: row %d: %w", cursor.Position(), err)
			}
			row[column] = value
		}
		rows = append(rows, row)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("resultexport: reading rows: %w", err)
	}
	return Encode(columns, rows, compression)
}

func cursorValue(cursor *sqlitedb.Cursor, column int) (any, error) {
	kind, err := cursor.Type(column)
	if err != nil {
		return nil, err
	}
	switch kind {
	case cursorwindow.FieldTypeInteger:
		return cursor.Long(column)
	case cursorwindow.FieldTypeFloat:
		return cursor.Double(column)
	case cursorwindow.FieldTypeString:
		return cursor.Text(column)
	case cursorwindow.FieldTypeBlob:
		return cursor.Blob(column)
	default:
		return nil, nil
	}
}

// WriteTo writes the export as one CBOR item.
func (e *Export) WriteTo(w io.Writer) (int64, error) {
	data, err := codec.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("resultexport: encoding header: %w", err)
	}
	written, err := w.Write(data)
	return int64(written), err
}

// Read decodes one export from r. The payload is not decompressed or
// verified until Rows is called.
func Read(r io.Reader) (*Export, error) {
	var export Export
	if err := codec.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("resultexport: decoding export: %w", err)
	}
	if export.Version != FormatVersion {
		return nil, fmt.Errorf("resultexport: unsupported format version %d", export.Version)
	}
	return &export, nil
}

// Rows decompresses and verifies the payload and returns its rows.
// Values are int64, float64, string, []byte, or nil.
func (e *Export) Rows() ([][]any, error) {
	payload, err := decompress(e.Payload, e.Compression, e.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("resultexport: %w", err)
	}
	if sum := checksum(payload); sum != e.Checksum {
		return nil, fmt.Errorf("%w: header %s, payload %s", ErrChecksumMismatch, e.Checksum, sum)
	}

	var cells [][]cell
	if err := codec.NewDecoder(bytes.NewReader(payload)).Decode(&cells); err != nil {
		return nil, fmt.Errorf("resultexport: decoding rows: %w", err)
	}
	if len(cells) != e.RowCount {
		return nil, fmt.Errorf("resultexport: payload has %d rows, header says %d", len(cells), e.RowCount)
	}

	rows := make([][]any, len(cells))
	for i, row := range cells {
		values := make([]any, len(row))
		for j, value := range row {
			switch value.Kind {
			case cursorwindow.FieldTypeInteger:
				values[j] = value.Integer
			case cursorwindow.FieldTypeFloat:
				values[j] = value.Float
			case cursorwindow.FieldTypeString:
				values[j] = value.Text
			case cursorwindow.FieldTypeBlob:
				values[j] = value.Blob
			}
		}
		rows[i] = values
	}
	return rows, nil
}

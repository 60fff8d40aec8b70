// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resultexport_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/bureau-foundation/sqlsession/lib/resultexport"
	"github.com/bureau-foundation/sqlsession/lib/sqlitedb"
)

func sampleRows(count int) [][]any {
	rows := make([][]any, count)
	for i := range rows {
		rows[i] = []any{
			int64(i),
			float64(i) / 4,
			fmt.Sprintf("entry %d %s", i, strings.Repeat("payload ", 4)),
			[]byte{byte(i), 0xff},
			nil,
		}
	}
	return rows
}

var sampleColumns = []string{"id", "ratio", "body", "data", "note"}

func roundTrip(t *testing.T, export *resultexport.Export) *resultexport.Export {
	t.Helper()
	var buffer bytes.Buffer
	if _, err := export.WriteTo(&buffer); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	decoded, err := resultexport.Read(&buffer)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return decoded
}

func TestEncodeRoundTripsEachCompression(t *testing.T) {
	rows := sampleRows(200)
	for _, compression := range []resultexport.Compression{
		resultexport.CompressionNone, resultexport.CompressionLZ4, resultexport.CompressionZstd,
	} {
		t.Run(compression.String(), func(t *testing.T) {
			export, err := resultexport.Encode(sampleColumns, rows, compression)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if export.Compression != compression {
				t.Errorf("Compression = %s, want %s", export.Compression, compression)
			}
			if compression != resultexport.CompressionNone && len(export.Payload) >= export.UncompressedSize {
				t.Errorf("payload %d bytes did not shrink from %d", len(export.Payload), export.UncompressedSize)
			}

			decoded := roundTrip(t, export)
			if !reflect.DeepEqual(decoded.Columns, sampleColumns) || decoded.RowCount != len(rows) {
				t.Errorf("header = %v columns, %d rows", decoded.Columns, decoded.RowCount)
			}
			got, err := decoded.Rows()
			if err != nil {
				t.Fatalf("Rows: %v", err)
			}
			if !reflect.DeepEqual(got, rows) {
				t.Errorf("row 1 = %#v, want %#v", got[1], rows[1])
			}
		})
	}
}

func TestIncompressiblePayloadIsStoredRaw(t *testing.T) {
	export, err := resultexport.Encode([]string{"id"}, [][]any{{int64(1)}}, resultexport.CompressionZstd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if export.Compression != resultexport.CompressionNone {
		t.Errorf("Compression = %s for a tiny payload, want none", export.Compression)
	}
	if _, err := roundTrip(t, export).Rows(); err != nil {
		t.Errorf("Rows: %v", err)
	}
}

func TestCorruptPayloadFailsChecksum(t *testing.T) {
	export, err := resultexport.Encode(sampleColumns, sampleRows(3), resultexport.CompressionNone)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	export.Payload[len(export.Payload)-1] ^= 0x01
	if _, err := export.Rows(); !errors.Is(err, resultexport.ErrChecksumMismatch) {
		t.Errorf("Rows error = %v, want ErrChecksumMismatch", err)
	}
}

func TestEncodeRejectsBadRows(t *testing.T) {
	if _, err := resultexport.Encode([]string{"a", "b"}, [][]any{{int64(1)}}, resultexport.CompressionNone); err == nil {
		t.Error("short row accepted")
	}
	if _, err := resultexport.Encode([]string{"a"}, [][]any{{struct{}{}}}, resultexport.CompressionNone); err == nil {
		t.Error("struct value accepted")
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		compression, err := resultexport.ParseCompression(name)
		if err != nil || compression.String() != name {
			t.Errorf("ParseCompression(%q) = %s, %v", name, compression, err)
		}
	}
	if _, err := resultexport.ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
}

func TestFromCursor(t *testing.T) {
	db, err := sqlitedb.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := db.ExecSQL(ctx, "CREATE TABLE items (id INTEGER, weight REAL, name TEXT, data BLOB)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for i := range 3 {
		values := sqlitedb.Values{"id": i, "weight": float64(i) + 0.5, "name": fmt.Sprintf("item %d", i), "data": nil}
		if _, err := db.InsertChecked(ctx, "items", "", values); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	cursor, err := db.RawQuery(ctx, "SELECT id, weight, name, data FROM items ORDER BY id")
	if err != nil {
		t.Fatalf("RawQuery: %v", err)
	}
	defer cursor.Close()
	export, err := resultexport.FromCursor(cursor, resultexport.CompressionLZ4)
	if err != nil {
		t.Fatalf("FromCursor: %v", err)
	}

	rows, err := roundTrip(t, export).Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	want := [][]any{
		{int64(0), 0.5, "item 0", nil},
		{int64(1), 1.5, "item 1", nil},
		{int64(2), 2.5, "item 2", nil},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %#v, want %#v", rows, want)
	}
}

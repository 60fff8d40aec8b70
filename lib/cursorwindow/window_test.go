// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cursorwindow_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

func TestNewDefaultCapacity(t *testing.T) {
	window := cursorwindow.New("test", 0)
	if window.Capacity() != cursorwindow.DefaultSize {
		t.Errorf("Capacity = %d, want %d", window.Capacity(), cursorwindow.DefaultSize)
	}
	if window.Name() != "test" {
		t.Errorf("Name = %q", window.Name())
	}
}

func TestPutAndReadByAbsolutePosition(t *testing.T) {
	window := cursorwindow.New("test", 4096)
	mustNoError(t, window.SetNumColumns(5))
	mustNoError(t, window.SetStartPosition(10))
	mustNoError(t, window.AllocRow())

	mustNoError(t, window.PutLong(10, 0, 42))
	mustNoError(t, window.PutDouble(10, 1, 2.5))
	mustNoError(t, window.PutString(10, 2, "hello"))
	mustNoError(t, window.PutBlob(10, 3, []byte{0xde, 0xad}))
	mustNoError(t, window.PutNull(10, 4))

	if !window.Contains(10) || window.Contains(9) || window.Contains(11) {
		t.Error("Contains does not match the single row at position 10")
	}

	long, err := window.Long(10, 0)
	if err != nil || long != 42 {
		t.Errorf("Long = %d, %v; want 42", long, err)
	}
	double, err := window.Double(10, 1)
	if err != nil || double != 2.5 {
		t.Errorf("Double = %v, %v; want 2.5", double, err)
	}
	text, err := window.Text(10, 2)
	if err != nil || text != "hello" {
		t.Errorf("Text = %q, %v; want hello", text, err)
	}
	blob, err := window.Blob(10, 3)
	if err != nil || !bytes.Equal(blob, []byte{0xde, 0xad}) {
		t.Errorf("Blob = %x, %v", blob, err)
	}
	isNull, err := window.IsNull(10, 4)
	if err != nil || !isNull {
		t.Errorf("IsNull = %v, %v; want true", isNull, err)
	}

	if _, err := window.Long(0, 0); !errors.Is(err, sqlerr.ErrInvalidState) {
		t.Errorf("Long(0, 0) outside window: err = %v, want ErrInvalidState", err)
	}
	if _, err := window.Long(10, 5); !errors.Is(err, sqlerr.ErrInvalidState) {
		t.Errorf("Long(10, 5) outside columns: err = %v, want ErrInvalidState", err)
	}
}

func TestConversions(t *testing.T) {
	window := cursorwindow.New("test", 4096)
	mustNoError(t, window.SetNumColumns(4))
	mustNoError(t, window.AllocRow())
	mustNoError(t, window.PutString(0, 0, " 17abc"))
	mustNoError(t, window.PutLong(0, 1, 3))
	mustNoError(t, window.PutDouble(0, 2, 9.75))
	mustNoError(t, window.PutBlob(0, 3, []byte("x")))

	if value, _ := window.Long(0, 0); value != 17 {
		t.Errorf("Long of text = %d, want 17", value)
	}
	if value, _ := window.Text(0, 1); value != "3" {
		t.Errorf("Text of integer = %q, want 3", value)
	}
	if value, _ := window.Long(0, 2); value != 9 {
		t.Errorf("Long of float = %d, want 9", value)
	}
	if value, _ := window.Text(0, 2); value != "9.75" {
		t.Errorf("Text of float = %q, want 9.75", value)
	}
	if _, err := window.Long(0, 3); err == nil {
		t.Error("Long of blob succeeded, want error")
	}
	if _, err := window.Blob(0, 1); err == nil {
		t.Error("Blob of integer succeeded, want error")
	}
}

func TestCapacityIsEnforced(t *testing.T) {
	// One column: each row costs an 8-byte header plus a 16-byte slot.
	window := cursorwindow.New("small", 48)
	mustNoError(t, window.SetNumColumns(1))
	mustNoError(t, window.AllocRow())
	mustNoError(t, window.AllocRow())
	if err := window.AllocRow(); !errors.Is(err, cursorwindow.ErrFull) {
		t.Fatalf("third AllocRow: err = %v, want ErrFull", err)
	}
	if window.FreeSpace() != 0 {
		t.Errorf("FreeSpace = %d, want 0", window.FreeSpace())
	}

	if err := window.PutString(1, 0, "does not fit"); !errors.Is(err, cursorwindow.ErrFull) {
		t.Fatalf("PutString: err = %v, want ErrFull", err)
	}

	mustNoError(t, window.FreeLastRow())
	if window.NumRows() != 1 || window.FreeSpace() != 24 {
		t.Errorf("after FreeLastRow: rows = %d, free = %d", window.NumRows(), window.FreeSpace())
	}
	mustNoError(t, window.PutString(0, 0, "fits"))
	if window.FreeSpace() != 19 {
		t.Errorf("FreeSpace after 4-byte string = %d, want 19", window.FreeSpace())
	}
}

func TestSetNumColumnsLockedWhileRowsPresent(t *testing.T) {
	window := cursorwindow.New("test", 1024)
	mustNoError(t, window.SetNumColumns(2))
	mustNoError(t, window.AllocRow())
	if err := window.SetNumColumns(3); !errors.Is(err, sqlerr.ErrInvalidState) {
		t.Errorf("SetNumColumns with rows: err = %v, want ErrInvalidState", err)
	}
	mustNoError(t, window.Clear())
	mustNoError(t, window.SetNumColumns(3))
}

func TestClosedWindowRejectsUse(t *testing.T) {
	window := cursorwindow.New("test", 1024)
	mustNoError(t, window.SetNumColumns(1))
	mustNoError(t, window.AllocRow())
	mustNoError(t, window.Close())
	mustNoError(t, window.Close())

	_, err := window.Long(0, 0)
	if !errors.Is(err, sqlerr.ErrInvalidState) || !errors.Is(err, sqlerr.ErrClosed) {
		t.Errorf("Long after Close: err = %v, want ErrInvalidState and ErrClosed", err)
	}
	if err := window.AllocRow(); !errors.Is(err, sqlerr.ErrClosed) {
		t.Errorf("AllocRow after Close: err = %v, want ErrClosed", err)
	}
	if window.Contains(0) {
		t.Error("closed window reports Contains(0)")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	window := cursorwindow.New("source", 4096)
	mustNoError(t, window.SetNumColumns(3))
	mustNoError(t, window.SetStartPosition(5))
	for position := 5; position < 8; position++ {
		mustNoError(t, window.AllocRow())
		mustNoError(t, window.PutLong(position, 0, int64(position)))
		mustNoError(t, window.PutString(position, 1, "row"))
		mustNoError(t, window.PutBlob(position, 2, []byte{byte(position)}))
	}

	data, err := window.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	restored := cursorwindow.New("empty", 0)
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if restored.Name() != "source" || restored.Capacity() != 4096 {
		t.Errorf("restored name/capacity = %q/%d", restored.Name(), restored.Capacity())
	}
	if restored.StartPosition() != 5 || restored.NumRows() != 3 || restored.NumColumns() != 3 {
		t.Fatalf("restored shape: start %d rows %d columns %d",
			restored.StartPosition(), restored.NumRows(), restored.NumColumns())
	}
	if restored.FreeSpace() != window.FreeSpace() {
		t.Errorf("FreeSpace = %d, want %d", restored.FreeSpace(), window.FreeSpace())
	}
	value, err := restored.Long(7, 0)
	if err != nil || value != 7 {
		t.Errorf("Long(7, 0) = %d, %v", value, err)
	}
	blob, err := restored.Blob(6, 2)
	if err != nil || !bytes.Equal(blob, []byte{6}) {
		t.Errorf("Blob(6, 2) = %x, %v", blob, err)
	}
}

func TestUnmarshalRejectsTruncatedData(t *testing.T) {
	window := cursorwindow.New("source", 4096)
	mustNoError(t, window.SetNumColumns(1))
	mustNoError(t, window.AllocRow())
	mustNoError(t, window.PutString(0, 0, "payload"))
	data, err := window.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	if err := cursorwindow.New("x", 0).UnmarshalBinary(data[:len(data)/2]); err == nil {
		t.Error("UnmarshalBinary of truncated data succeeded")
	}
}

func mustNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

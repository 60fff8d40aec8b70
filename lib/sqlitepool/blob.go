// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"bytes"
	"io"

	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

// Blob is a read-only, seekable copy of a single result value returned
// by Connection.ExecuteForBlob. It holds no reference to the
// connection, so it stays readable after the connection is released.
type Blob struct {
	reader *bytes.Reader
	size   int64
	closed bool
}

var _ io.ReadSeekCloser = (*Blob)(nil)

func newBlob(data []byte) *Blob {
	return &Blob{reader: bytes.NewReader(data), size: int64(len(data))}
}

// Size returns the length of the value in bytes.
func (b *Blob) Size() int64 { return b.size }

func (b *Blob) Read(p []byte) (int, error) {
	if b.closed {
		return 0, sqlerr.ErrClosed
	}
	return b.reader.Read(p)
}

func (b *Blob) ReadAt(p []byte, offset int64) (int, error) {
	if b.closed {
		return 0, sqlerr.ErrClosed
	}
	return b.reader.ReadAt(p, offset)
}

func (b *Blob) Seek(offset int64, whence int) (int64, error) {
	if b.closed {
		return 0, sqlerr.ErrClosed
	}
	return b.reader.Seek(offset, whence)
}

// Close releases the copy. Closing twice is a no-op.
func (b *Blob) Close() error {
	b.closed = true
	b.reader = bytes.NewReader(nil)
	return nil
}

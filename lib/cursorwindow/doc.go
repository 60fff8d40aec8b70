// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cursorwindow implements a fixed-capacity buffer holding a
// rectangular slice of a query result.
//
// A [Window] is created by the caller, cleared and filled by
// sqlitepool.Connection.ExecuteForCursorWindow, and then read back by
// absolute row position. Positions are relative to the full result
// set: a window whose [Window.StartPosition] is 100 holds rows 100,
// 101, and so on, and [Window.Long] (100, 0) reads its first row.
//
// The capacity is a byte budget, not a row count. Every row costs a
// fixed header plus one slot per column; strings and blobs add their
// payload length. When the next row does not fit, [Window.AllocRow]
// returns [ErrFull] and the filler stops (or keeps counting rows
// without storing them).
//
// A window holds no reference to the connection that filled it. It is
// a snapshot, and [Window.MarshalBinary] encodes it as deterministic
// CBOR for transfer to another process.
//
// Windows are not safe for concurrent use. [Window.Close] releases the
// row storage; every later call fails with an error matching both
// sqlerr.ErrInvalidState and sqlerr.ErrClosed.
package cursorwindow

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resultexport packages query results into a self-describing
// file for transfer between processes or hosts.
//
// An export is one CBOR map holding the column names, row count,
// compression tag, uncompressed payload size, a BLAKE3 keyed checksum
// of the uncompressed payload, and the payload itself. The payload is
// a CBOR array of rows whose cells carry their SQLite storage class, so
// an INTEGER comes back as int64 and a BLOB as []byte regardless of
// what CBOR's own integer rules would pick.
//
// Payloads compress with zstd or LZ4 block mode. When compression does
// not shrink the payload it is stored uncompressed and the header says
// so. [Read] decodes the header only; [Export.Rows] decompresses and
// verifies the checksum.
package resultexport

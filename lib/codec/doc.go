// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration used for bulk
// transfer of query results.
//
// Cursor windows serialize their rows with this package when they are
// handed to another process, and the result export container frames
// its header and payload with it. Every encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. The same window
// contents always produce identical bytes, which keeps export
// checksums stable across runs.
//
// For buffers:
//
//	data, err := codec.Marshal(snapshot)
//	err = codec.Unmarshal(data, &snapshot)
//
// To read a sequence of items from a stream:
//
//	decoder := codec.NewDecoder(file)
//
// Types that are only ever CBOR carry `cbor` struct tags. Byte slices
// encode as CBOR byte strings, so BLOB columns survive unchanged.
package codec

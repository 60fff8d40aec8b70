// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for the concurrency tests of
// the pool and session packages.
//
// [RequireReceive] and [RequireClosed] wrap the select with a
// wall-clock fallback that keeps a test from hanging when a goroutine
// blocked in Acquire never wakes, and [RequireEventually] polls a
// condition under the same kind of deadline. They are the only place
// tests use real timeouts; everything else runs on clock.Fake.
package testutil

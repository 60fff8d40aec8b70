// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the
// connection pool and sessions.
//
// The pool logs a warning every BusyLogInterval while an acquisition
// waits, and a session sleeps between releasing and reacquiring its
// connection when it yields a transaction. Both go through a [Clock]
// so tests can drive them without real waits:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	pool, _ := sqlitepool.Open(sqlitepool.Config{Path: path, Clock: fake})
//	// ... start a goroutine that blocks in Acquire ...
//	fake.WaitForTimers(1)
//	fake.Advance(30 * time.Second)
//
// [FakeClock.WaitForTimers] blocks until the goroutine under test has
// registered its timer, so Advance never races the registration.
package clock

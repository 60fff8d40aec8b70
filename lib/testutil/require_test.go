// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil_test

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/sqlsession/lib/testutil"
)

// recorder captures Fatalf without stopping the test goroutine.
type recorder struct {
	failed  bool
	message string
}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
}

func TestRequireReceive(t *testing.T) {
	channel := make(chan int, 1)
	channel <- 7
	if got := testutil.RequireReceive(t, channel, time.Second, "buffered value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}
}

func TestRequireEventually(t *testing.T) {
	var counter atomic.Int32
	go func() {
		for range 3 {
			counter.Add(1)
		}
	}()
	testutil.RequireEventually(t, func() bool { return counter.Load() == 3 }, 5*time.Second, "counter reaches 3")
}

func TestRequireEventuallyTimesOut(t *testing.T) {
	var r recorder
	testutil.RequireEventually(&r, func() bool { return false }, 10*time.Millisecond, "never true %d", 1)
	if !r.failed || !strings.Contains(r.message, "never true 1") {
		t.Errorf("recorder = %+v", r)
	}
}

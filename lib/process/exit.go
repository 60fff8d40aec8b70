// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1.
//
//	func main() {
//	    if err := run(); err != nil {
//	        process.Fatal(err)
//	    }
//	}
func Fatal(err error) {
	WriteError(os.Stderr, err)
	os.Exit(1)
}

// WriteError formats err the way Fatal does.
func WriteError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}

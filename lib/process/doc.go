// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helper shared by Bureau
// binaries: reporting an error from run() on stderr before the
// structured logger exists, then exiting.
package process

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// engineModule is the module providing the SQLite engine.
const engineModule = "modernc.org/sqlite"

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns Info plus the Go version, platform, and the version of
// the SQLite engine module linked into the binary.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s\n  Engine: %s %s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH, engineModule, EngineVersion())
}

// EngineVersion returns the module version of the SQLite engine from
// the binary's build info, or "unknown" when it is unavailable (as in
// test binaries built without module information).
func EngineVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dependency := range info.Deps {
		if dependency.Path == engineModule {
			return dependency.Version
		}
	}
	return "unknown"
}

// Print writes Full to w followed by a newline.
func Print(w io.Writer) error {
	_, err := fmt.Fprintln(w, Full())
	return err
}

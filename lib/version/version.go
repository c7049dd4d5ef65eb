// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags -X at build time. Empty values fall back to the VCS
// stamp the Go toolchain embeds in the binary.
var (
	GitCommit = ""
	GitDirty  = ""
	BuildTime = ""
	Version   = "0.1.0-dev"
)

// Build describes the running binary.
type Build struct {
	Version string
	Commit  string
	Dirty   bool
	Time    string
}

// Current resolves the build description from ldflags, then from
// debug.ReadBuildInfo, then "unknown".
func Current() Build {
	build := Build{Version: Version, Commit: GitCommit, Dirty: GitDirty == "true", Time: BuildTime}
	if info, ok := debug.ReadBuildInfo(); ok {
		build = build.withSettings(info.Settings)
	}
	if build.Commit == "" {
		build.Commit = "unknown"
	}
	if build.Time == "" {
		build.Time = "unknown"
	}
	return build
}

// withSettings fills whatever ldflags left empty from the embedded
// vcs.* build settings.
func (b Build) withSettings(settings []debug.BuildSetting) Build {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = setting.Value
				if len(b.Commit) > 12 {
					b.Commit = b.Commit[:12]
				}
			}
		case "vcs.modified":
			if GitDirty == "" {
				b.Dirty = setting.Value == "true"
			}
		case "vcs.time":
			if b.Time == "" {
				b.Time = setting.Value
			}
		}
	}
	return b
}

func (b Build) String() string {
	commit := b.Commit
	if b.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, commit, b.Time)
}

// Info returns the one-line version string used by --version and the
// startup log.
func Info() string { return Current().String() }

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Print writes "<binary> <Info>" to stdout, before any logger exists.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Info())
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestBuildStringMarksDirty(t *testing.T) {
	t.Parallel()
	build := Build{Version: "1.2.0", Commit: "abc1234", Dirty: true, Time: "2026-10-01T00:00:00Z"}
	if got := build.String(); got != "1.2.0 (abc1234-dirty, 2026-10-01T00:00:00Z)" {
		t.Errorf("String() = %q", got)
	}
	build.Dirty = false
	if got := build.String(); strings.Contains(got, "-dirty") {
		t.Errorf("String() = %q, clean build should not be marked dirty", got)
	}
}

func TestWithSettingsFillsFromVCS(t *testing.T) {
	t.Parallel()
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-09-30T12:00:00Z"},
		{Key: "GOOS", Value: "linux"},
	}
	build := Build{Version: "dev"}.withSettings(settings)
	if build.Commit != "0123456789ab" {
		t.Errorf("Commit = %q, want truncated revision", build.Commit)
	}
	if build.Time != "2026-09-30T12:00:00Z" {
		t.Errorf("Time = %q", build.Time)
	}
}

func TestWithSettingsKeepsLinkerValues(t *testing.T) {
	t.Parallel()
	build := Build{Commit: "release1", Time: "linked"}.withSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "ffffffffffff"},
		{Key: "vcs.time", Value: "embedded"},
	})
	if build.Commit != "release1" || build.Time != "linked" {
		t.Errorf("build = %+v, ldflags values should win", build)
	}
}

func TestFullIncludesPlatform(t *testing.T) {
	t.Parallel()
	if full := Full(); !strings.Contains(full, "Platform: ") {
		t.Errorf("Full() = %q, want platform line", full)
	}
}

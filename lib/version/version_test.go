// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit, GitDirty = "abc1234", "true"
	if info := Info(); !strings.Contains(info, "abc1234-dirty") {
		t.Errorf("Info() = %q, want the dirty marker", info)
	}
	GitDirty = "false"
	if info := Info(); strings.Contains(info, "dirty") {
		t.Errorf("Info() = %q, want no dirty marker", info)
	}
}

func TestStampFallsBackToEmbeddedVCS(t *testing.T) {
	info := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
	}}

	unstamped := Stamp{Version: "0.1.0-dev", Commit: "unknown", Built: "unknown"}
	if got, want := unstamped.withBuildInfo(info).String(), "0.1.0-dev (0123456789ab-dirty, 2026-10-01T12:00:00Z)"; got != want {
		t.Errorf("unstamped = %q, want %q", got, want)
	}

	stamped := Stamp{Version: "1.2.0", Commit: "abc1234", Built: "2026-10-02"}
	if got := stamped.withBuildInfo(info); got != stamped {
		t.Errorf("linker stamp overridden: %+v", got)
	}
}

func TestFullIncludesPlatform(t *testing.T) {
	full := Full()
	if !strings.Contains(full, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Full() = %q, missing platform", full)
	}
}

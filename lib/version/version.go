// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Linker-stamped. GitDirty is the string "true" or "false" because
// -X only sets strings.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Stamp is the resolved identity of the running binary.
type Stamp struct {
	Version string
	Commit  string
	Dirty   bool
	Built   string
}

// Current resolves the stamp, filling fields the linker left unset
// from the embedded vcs settings.
func Current() Stamp {
	stamp := Stamp{Version: Version, Commit: GitCommit, Dirty: GitDirty == "true", Built: BuildTime}
	if info, ok := debug.ReadBuildInfo(); ok {
		stamp = stamp.withBuildInfo(info)
	}
	return stamp
}

func (s Stamp) withBuildInfo(info *debug.BuildInfo) Stamp {
	if s.Commit != "unknown" {
		return s
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			s.Commit = setting.Value[:min(len(setting.Value), 12)]
		case "vcs.modified":
			s.Dirty = setting.Value == "true"
		case "vcs.time":
			if s.Built == "unknown" {
				s.Built = setting.Value
			}
		}
	}
	return s
}

// String formats the stamp as "version (commit[-dirty], time)".
func (s Stamp) String() string {
	commit := s.Commit
	if s.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", s.Version, commit, s.Built)
}

// Info is Current().String().
func Info() string {
	return Current().String()
}

// Full adds the toolchain and target platform on indented lines.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

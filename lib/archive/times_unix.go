// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin || freebsd || netbsd || openbsd

package archive

import (
	"time"

	"golang.org/x/sys/unix"
)

// setSymlinkTime sets the times of the link itself, not its target.
func setSymlinkTime(link string, modTime time.Time) error {
	times := []unix.Timeval{
		unix.NsecToTimeval(modTime.UnixNano()),
		unix.NsecToTimeval(modTime.UnixNano()),
	}
	return unix.Lutimes(link, times)
}

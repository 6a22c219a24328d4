// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "strconv"

// ExitError ends the process with Code and nothing else printed. A
// command returns it after writing its own report, as "buildcache
// fetch" does when a target was not materialized.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// ExitCode satisfies the interface main checks before printing an
// error.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"fmt"
	"strings"
)

// InvalidInputError reports a value that can never be part of a rule
// key: a raw filesystem path, a malformed source path, or a leaf of an
// unsupported type. It is a user-facing error: the rule's definition
// has to change.
type InvalidInputError struct {
	Value  any
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid rule key input %v (%T): %s", e.Value, e.Value, e.Reason)
}

// SetError names the field whose value could not be hashed. KeyPath
// is the chain of field names from the rule down to the failing
// value; Err is the root cause (an I/O error resolving a source path,
// an *InvalidInputError, a *CycleError, ...).
type SetError struct {
	KeyPath []string
	Value   any
	Err     error
}

func (e *SetError) Error() string {
	return fmt.Sprintf("when adding %s with value %v: %v", strings.Join(e.KeyPath, "."), e.Value, e.Err)
}

func (e *SetError) Unwrap() error {
	return e.Err
}

// CycleError reports a rule that depends on itself. Cycle lists the
// targets from the first occurrence of the repeated target to its
// second occurrence.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

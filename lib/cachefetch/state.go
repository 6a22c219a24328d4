// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cachefetch

import (
	"fmt"
	"slices"
)

// State is a stage of one fetch pipeline run.
type State int

const (
	StatePending State = iota
	// StateNotCacheable: the rule opted out; the cache was not asked.
	StateNotCacheable
	StateFetching
	StateMiss
	StateError
	StateSoftError
	// StateValidating checks the metadata of a hit.
	StateValidating
	// StateExtracting unpacks the archive into the workspace.
	StateExtracting
	// StatePersistingMetadata writes the hit's metadata to the
	// build info store.
	StatePersistingMetadata
	StateDone
	// StateFailed ends a run that returned a hard error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateNotCacheable:
		return "not-cacheable"
	case StateFetching:
		return "fetching"
	case StateMiss:
		return "miss"
	case StateError:
		return "error"
	case StateSoftError:
		return "soft-error"
	case StateValidating:
		return "validating"
	case StateExtracting:
		return "extracting"
	case StatePersistingMetadata:
		return "persisting-metadata"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

var transitions = map[State][]State{
	StatePending:            {StateNotCacheable, StateFetching},
	StateFetching:           {StateMiss, StateError, StateSoftError, StateValidating},
	StateValidating:         {StateExtracting, StateFailed},
	StateExtracting:         {StatePersistingMetadata, StateFailed},
	StatePersistingMetadata: {StateDone, StateFailed},
}

// machine tracks one run. It is owned by one task at a time.
type machine struct {
	trace []State
}

func newMachine() *machine {
	return &machine{trace: []State{StatePending}}
}

func (m *machine) current() State {
	return m.trace[len(m.trace)-1]
}

// advance moves to next. An illegal transition is a bug in the
// pipeline and panics.
func (m *machine) advance(next State) {
	current := m.current()
	if !slices.Contains(transitions[current], next) {
		panic(fmt.Sprintf("cachefetch: illegal transition %s -> %s", current, next))
	}
	m.trace = append(m.trace, next)
}
